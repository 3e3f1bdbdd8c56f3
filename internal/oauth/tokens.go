package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/grantorhq/grantor/internal/observability/logger"
	tokens "github.com/grantorhq/grantor/internal/security/token"
	"github.com/grantorhq/grantor/internal/store/core"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeBearer = "Bearer"
)

// AccessClaims is the signed payload of an access token. The subject is the
// user for user-bound grants and the client itself for client credentials.
type AccessClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenLedger issues, validates, rotates and revokes access/refresh pairs.
// Access tokens are HS256-signed and self-describing; refresh tokens are
// opaque and only the backing store knows whether one is live. The signing
// secret is injected per instance so independent ledgers never share key
// material.
type TokenLedger struct {
	store      core.TokenRepository
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type TokenLedgerDeps struct {
	Store      core.TokenRepository
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration    // zero means DefaultAccessTTL
	RefreshTTL time.Duration    // zero means DefaultRefreshTTL
	Now        func() time.Time // zero means time.Now
}

func NewTokenLedger(d TokenLedgerDeps) *TokenLedger {
	l := &TokenLedger{
		store:      d.Store,
		secret:     d.Secret,
		issuer:     d.Issuer,
		accessTTL:  d.AccessTTL,
		refreshTTL: d.RefreshTTL,
		now:        d.Now,
	}
	if l.accessTTL <= 0 {
		l.accessTTL = DefaultAccessTTL
	}
	if l.refreshTTL <= 0 {
		l.refreshTTL = DefaultRefreshTTL
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// AccessTTL reports the configured access token lifetime.
func (l *TokenLedger) AccessTTL() time.Duration { return l.accessTTL }

// IssueAccessToken signs a token for the given subject. userID may be nil
// for client-bound grants; the subject then falls back to the client.
func (l *TokenLedger) IssueAccessToken(userID *string, clientID, scope string) (string, error) {
	now := l.now().UTC()
	sub := clientID
	if userID != nil && *userID != "" {
		sub = *userID
	}
	claims := AccessClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    l.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return "", storageErr(err)
	}
	return signed, nil
}

// IssueRefreshToken returns a fresh 256-bit opaque string. It carries no
// structure; the persisted record is the sole source of truth for it.
func (l *TokenLedger) IssueRefreshToken() (string, error) {
	s, err := tokens.GenerateOpaque(32)
	if err != nil {
		return "", storageErr(err)
	}
	return s, nil
}

// Persist stores an access/refresh pair as one record with independent
// expiries. refresh may be nil for access-only grants.
func (l *TokenLedger) Persist(ctx context.Context, access string, refresh *string, clientID string, userID *string, scope string) (*core.Token, error) {
	now := l.now().UTC()
	t := &core.Token{
		ID:          uuid.NewString(),
		AccessToken: access,
		ClientID:    clientID,
		UserID:      userID,
		Scope:       scope,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   now.Add(l.accessTTL),
		Revoked:     false,
		CreatedAt:   now,
	}
	if refresh != nil {
		t.RefreshToken = refresh
		exp := now.Add(l.refreshTTL)
		t.RefreshExpiresAt = &exp
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	if err := l.store.Create(sctx, t); err != nil {
		return nil, storageErr(err)
	}
	return t, nil
}

// Validate checks the signature and claims locally, then requires a live
// backing record. A well-signed, unexpired token whose record was revoked
// still fails.
func (l *TokenLedger) Validate(ctx context.Context, accessToken string) (*core.Token, error) {
	if _, err := l.parseAccess(accessToken); err != nil {
		return nil, errf(KindInvalidGrant, "access token is invalid")
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	t, err := l.store.GetByAccess(sctx, accessToken)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errf(KindInvalidGrant, "access token is invalid")
		}
		return nil, storageErr(err)
	}
	if t.Revoked || !l.now().Before(t.ExpiresAt) {
		return nil, errf(KindInvalidGrant, "access token is invalid")
	}
	return t, nil
}

// LookupByRefresh resolves a live refresh token. Revoked or expired refresh
// tokens report the same way as unknown ones.
func (l *TokenLedger) LookupByRefresh(ctx context.Context, refreshToken string) (*core.Token, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	t, err := l.store.GetByRefresh(sctx, refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errf(KindInvalidGrant, "refresh token is invalid")
		}
		return nil, storageErr(err)
	}
	if t.Revoked {
		return nil, errf(KindInvalidGrant, "refresh token is invalid")
	}
	if t.RefreshExpiresAt == nil || !l.now().Before(*t.RefreshExpiresAt) {
		return nil, errf(KindInvalidGrant, "refresh token is invalid")
	}
	return t, nil
}

// Revoke flags the record matching either token column. Returns whether this
// call changed anything; revoking an already-revoked or unknown token is a
// no-op, not an error.
func (l *TokenLedger) Revoke(ctx context.Context, tokenString string) (bool, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	changed, err := l.store.Revoke(sctx, tokenString)
	if err != nil {
		return false, storageErr(err)
	}
	if changed {
		logger.From(ctx).With(logger.Layer("service"), logger.Op("token.revoke")).
			Info("token revoked")
	}
	return changed, nil
}

// Rotate revokes old and persists a fresh pair carrying the same user and
// scope, in one store transaction. If another rotation or a revoke got to the
// old record first the whole call fails with invalid_grant and nothing new is
// written, so old and new are never simultaneously valid.
func (l *TokenLedger) Rotate(ctx context.Context, old *core.Token) (*core.Token, error) {
	access, err := l.IssueAccessToken(old.UserID, old.ClientID, old.Scope)
	if err != nil {
		return nil, err
	}
	refresh, err := l.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	refreshExp := now.Add(l.refreshTTL)
	replacement := &core.Token{
		ID:               uuid.NewString(),
		AccessToken:      access,
		RefreshToken:     &refresh,
		ClientID:         old.ClientID,
		UserID:           old.UserID,
		Scope:            old.Scope,
		TokenType:        tokenTypeBearer,
		ExpiresAt:        now.Add(l.accessTTL),
		RefreshExpiresAt: &refreshExp,
		Revoked:          false,
		CreatedAt:        now,
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	if err := l.store.Rotate(sctx, old.ID, replacement); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errf(KindInvalidGrant, "refresh token is invalid")
		}
		return nil, storageErr(err)
	}
	return replacement, nil
}

// SweepExpired deletes records past both expiries. Cleanup only; validity
// never depends on it.
func (l *TokenLedger) SweepExpired(ctx context.Context) (int64, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	n, err := l.store.DeleteExpired(sctx, l.now().UTC())
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (l *TokenLedger) parseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return l.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(l.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
