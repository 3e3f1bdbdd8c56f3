package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/grantorhq/grantor/internal/observability/logger"
	tokens "github.com/grantorhq/grantor/internal/security/token"
	"github.com/grantorhq/grantor/internal/store/core"
)

// DefaultCodeTTL is how long an authorization code stays redeemable.
const DefaultCodeTTL = 10 * time.Minute

// CodeLedger creates and atomically redeems one-time authorization codes.
type CodeLedger struct {
	codes core.CodeRepository
	ttl   time.Duration
	now   func() time.Time
}

type CodeLedgerDeps struct {
	Codes core.CodeRepository
	TTL   time.Duration    // zero means DefaultCodeTTL
	Now   func() time.Time // zero means time.Now; injectable for expiry tests
}

func NewCodeLedger(d CodeLedgerDeps) *CodeLedger {
	l := &CodeLedger{codes: d.Codes, ttl: d.TTL, now: d.Now}
	if l.ttl <= 0 {
		l.ttl = DefaultCodeTTL
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

type IssueCodeInput struct {
	ClientID    string
	UserID      string
	RedirectURI string
	Scope       string
	Challenge   string // optional PKCE challenge
	Method      string // "S256" | "plain"; empty with a challenge means plain
}

// Issue mints a 256-bit random code bound to the client, user, redirect URI
// and scope, expiring after the ledger TTL.
func (l *CodeLedger) Issue(ctx context.Context, in IssueCodeInput) (*core.AuthorizationCode, error) {
	code, err := tokens.GenerateOpaque(32)
	if err != nil {
		return nil, storageErr(err)
	}
	now := l.now().UTC()
	ac := &core.AuthorizationCode{
		ID:              uuid.NewString(),
		Code:            code,
		ClientID:        in.ClientID,
		UserID:          in.UserID,
		RedirectURI:     in.RedirectURI,
		Scope:           in.Scope,
		CodeChallenge:   in.Challenge,
		ChallengeMethod: in.Method,
		ExpiresAt:       now.Add(l.ttl),
		Used:            false,
		CreatedAt:       now,
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	if err := l.codes.Create(sctx, ac); err != nil {
		return nil, storageErr(err)
	}
	logger.From(ctx).With(logger.Layer("service"), logger.Op("code.issue")).
		Debug("authorization code issued", logger.ClientID(in.ClientID), logger.UserID(in.UserID))
	return ac, nil
}

// Redeem validates and consumes a code. Every check runs against a snapshot
// and leaves the record untouched on failure; only after all checks pass does
// the conditional flip of the used flag happen, so two racing redemptions of
// one code produce exactly one winner.
//
// Found-but-used, expired and unknown codes all report invalid_grant so a
// caller cannot probe which of the three it hit.
func (l *CodeLedger) Redeem(ctx context.Context, code string, client *core.Client, redirectURI, pkceVerifier string) (*core.AuthorizationCode, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	ac, err := l.codes.GetByCode(sctx, code)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errf(KindInvalidGrant, "authorization code is invalid")
		}
		return nil, storageErr(err)
	}

	switch {
	case ac.Used:
		return nil, errf(KindInvalidGrant, "authorization code is invalid")
	case l.now().After(ac.ExpiresAt):
		return nil, errf(KindInvalidGrant, "authorization code is invalid")
	case ac.ClientID != client.ClientID:
		return nil, errf(KindInvalidClient, "authorization code was issued to another client")
	case ac.RedirectURI != redirectURI:
		return nil, errf(KindInvalidGrant, "redirect_uri does not match the authorization request")
	}

	if ac.CodeChallenge != "" {
		if pkceVerifier == "" {
			return nil, errf(KindInvalidRequest, "code_verifier is required")
		}
		if !verifyPKCE(ac.CodeChallenge, ac.ChallengeMethod, pkceVerifier) {
			return nil, errf(KindInvalidGrant, "code_verifier does not match the challenge")
		}
	}

	cctx, cancel2 := storeCtx(ctx)
	defer cancel2()
	won, err := l.codes.Consume(cctx, code)
	if err != nil {
		return nil, storageErr(err)
	}
	if !won {
		// Lost the race; another redemption flipped the flag first.
		return nil, errf(KindInvalidGrant, "authorization code is invalid")
	}
	ac.Used = true
	return ac, nil
}

// SweepExpired garbage-collects codes past expiry.
func (l *CodeLedger) SweepExpired(ctx context.Context) (int64, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	n, err := l.codes.DeleteExpired(sctx, l.now().UTC())
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// verifyPKCE compares the verifier against the recorded challenge. S256 is
// base64url-no-pad(sha256(verifier)); plain (or an unset method) compares the
// verifier directly. Comparison is constant time in both cases.
func verifyPKCE(challenge, method, verifier string) bool {
	switch method {
	case PKCEMethodS256:
		return tokens.ConstantTimeEquals(tokens.SHA256Base64URL(verifier), challenge)
	case PKCEMethodPlain, "":
		return tokens.ConstantTimeEquals(verifier, challenge)
	default:
		return false
	}
}
