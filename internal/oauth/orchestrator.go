package oauth

import (
	"context"

	"github.com/grantorhq/grantor/internal/observability/logger"
	"github.com/grantorhq/grantor/internal/store/core"
)

// Orchestrator composes the registry and the two ledgers into the three
// supported grant flows. Every token request authenticates the client first;
// only then does any ledger state move.
type Orchestrator struct {
	registry *Registry
	codes    *CodeLedger
	tokens   *TokenLedger
}

type OrchestratorDeps struct {
	Registry *Registry
	Codes    *CodeLedger
	Tokens   *TokenLedger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	return &Orchestrator{registry: d.Registry, codes: d.Codes, tokens: d.Tokens}
}

func (o *Orchestrator) Registry() *Registry  { return o.registry }
func (o *Orchestrator) Codes() *CodeLedger   { return o.codes }
func (o *Orchestrator) Tokens() *TokenLedger { return o.tokens }

type AuthorizeRequest struct {
	ClientID      string
	RedirectURI   string
	ResponseType  string
	Scope         string
	State         string
	PKCEChallenge string
	PKCEMethod    string
	// UserID is the already-authenticated resource owner. Authentication
	// itself happens upstream; the orchestrator only binds the identity.
	UserID string
}

type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	CodeVerifier string
	Scope        string
}

// TokenPair is the successful outcome of a token request. RefreshToken is
// empty for the client credentials grant.
type TokenPair struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
	Scope        string
}

// Authorize validates an authorization request and issues a code bound to
// the authenticated user. Redirect URI and scope are checked against the
// client's registration before any state is written.
func (o *Orchestrator) Authorize(ctx context.Context, req AuthorizeRequest) (*core.AuthorizationCode, error) {
	client, err := o.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if err := o.registry.ValidateRedirectURI(client, req.RedirectURI); err != nil {
		return nil, err
	}
	if req.ResponseType != "code" {
		return nil, errf(KindUnsupportedResponseType, "response_type must be %q", "code")
	}
	if err := o.registry.ValidateGrantType(client, GrantAuthorizationCode); err != nil {
		return nil, err
	}
	if err := o.registry.ValidateScope(client, req.Scope); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, errf(KindInvalidRequest, "authenticated user is required")
	}
	if req.PKCEChallenge != "" && req.PKCEMethod != "" &&
		req.PKCEMethod != PKCEMethodS256 && req.PKCEMethod != PKCEMethodPlain {
		return nil, errf(KindInvalidRequest, "unsupported code_challenge_method %q", req.PKCEMethod)
	}

	return o.codes.Issue(ctx, IssueCodeInput{
		ClientID:    client.ClientID,
		UserID:      req.UserID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		Challenge:   req.PKCEChallenge,
		Method:      req.PKCEMethod,
	})
}

// Token runs one grant attempt. No retries; each call either produces a pair
// or a kinded error the transport maps to a protocol response.
func (o *Orchestrator) Token(ctx context.Context, req TokenRequest) (*TokenPair, error) {
	client, err := o.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token"),
		logger.ClientID(client.ClientID), logger.GrantType(req.GrantType))

	switch req.GrantType {
	case GrantAuthorizationCode:
		pair, err := o.authorizationCodeGrant(ctx, client, req)
		if err != nil {
			return nil, err
		}
		log.Info("token pair issued")
		return pair, nil
	case GrantClientCredentials:
		pair, err := o.clientCredentialsGrant(ctx, client, req)
		if err != nil {
			return nil, err
		}
		log.Info("access token issued")
		return pair, nil
	case GrantRefreshToken:
		pair, err := o.refreshTokenGrant(ctx, client, req)
		if err != nil {
			return nil, err
		}
		log.Info("token pair rotated")
		return pair, nil
	default:
		return nil, errf(KindUnsupportedGrantType, "unsupported grant_type %q", req.GrantType)
	}
}

func (o *Orchestrator) authorizationCodeGrant(ctx context.Context, client *core.Client, req TokenRequest) (*TokenPair, error) {
	if req.Code == "" {
		return nil, errf(KindInvalidRequest, "code is required")
	}
	if req.RedirectURI == "" {
		return nil, errf(KindInvalidRequest, "redirect_uri is required")
	}
	if err := o.registry.ValidateGrantType(client, GrantAuthorizationCode); err != nil {
		return nil, err
	}

	code, err := o.codes.Redeem(ctx, req.Code, client, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return nil, err
	}

	userID := code.UserID
	access, err := o.tokens.IssueAccessToken(&userID, client.ClientID, code.Scope)
	if err != nil {
		return nil, err
	}
	refresh, err := o.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}
	rec, err := o.tokens.Persist(ctx, access, &refresh, client.ClientID, &userID, code.Scope)
	if err != nil {
		return nil, err
	}
	return o.pair(rec), nil
}

func (o *Orchestrator) clientCredentialsGrant(ctx context.Context, client *core.Client, req TokenRequest) (*TokenPair, error) {
	if !client.Confidential {
		return nil, errf(KindUnauthorizedClient, "client_credentials requires a confidential client")
	}
	if err := o.registry.ValidateGrantType(client, GrantClientCredentials); err != nil {
		return nil, err
	}
	if err := o.registry.ValidateScope(client, req.Scope); err != nil {
		return nil, err
	}

	access, err := o.tokens.IssueAccessToken(nil, client.ClientID, req.Scope)
	if err != nil {
		return nil, err
	}
	rec, err := o.tokens.Persist(ctx, access, nil, client.ClientID, nil, req.Scope)
	if err != nil {
		return nil, err
	}
	return o.pair(rec), nil
}

// refreshTokenGrant rotates a live refresh token. The originally granted
// scope is carried over verbatim; it is not re-checked against the client's
// current allowed set.
func (o *Orchestrator) refreshTokenGrant(ctx context.Context, client *core.Client, req TokenRequest) (*TokenPair, error) {
	if req.RefreshToken == "" {
		return nil, errf(KindInvalidRequest, "refresh_token is required")
	}
	if err := o.registry.ValidateGrantType(client, GrantRefreshToken); err != nil {
		return nil, err
	}

	old, err := o.tokens.LookupByRefresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if old.ClientID != client.ClientID {
		return nil, errf(KindInvalidGrant, "refresh token was issued to another client")
	}

	rec, err := o.tokens.Rotate(ctx, old)
	if err != nil {
		return nil, err
	}
	return o.pair(rec), nil
}

// Revoke invalidates whichever record matches the given token string. Always
// succeeds from the caller's perspective; unknown tokens are a no-op.
func (o *Orchestrator) Revoke(ctx context.Context, tokenString string) error {
	_, err := o.tokens.Revoke(ctx, tokenString)
	return err
}

// Introspect resolves a live access token to its record for resource
// protection middleware.
func (o *Orchestrator) Introspect(ctx context.Context, accessToken string) (*core.Token, error) {
	return o.tokens.Validate(ctx, accessToken)
}

// RegisterClient delegates to the registry.
func (o *Orchestrator) RegisterClient(ctx context.Context, in RegisterClientInput) (*core.Client, string, error) {
	return o.registry.Register(ctx, in)
}

func (o *Orchestrator) pair(rec *core.Token) *TokenPair {
	p := &TokenPair{
		AccessToken: rec.AccessToken,
		TokenType:   rec.TokenType,
		ExpiresIn:   int64(o.tokens.AccessTTL().Seconds()),
		Scope:       rec.Scope,
	}
	if rec.RefreshToken != nil {
		p.RefreshToken = *rec.RefreshToken
	}
	return p
}
