// Package oauth contains the grant machinery: client registry, authorization
// code ledger, token ledger and the orchestrator that composes them into the
// three supported grant flows. The package holds no transport types; it
// receives parsed requests and returns typed results or kinded errors.
package oauth

import (
	"context"
	"time"
)

// Grant type identifiers accepted by the orchestrator.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// PKCE challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// DefaultStoreTimeout bounds every store call made by the ledgers. A store
// that exceeds it surfaces as a storage failure, never a hang.
const DefaultStoreTimeout = 5 * time.Second

func storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultStoreTimeout)
}
