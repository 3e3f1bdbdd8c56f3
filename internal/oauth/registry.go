package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantorhq/grantor/internal/cache"
	"github.com/grantorhq/grantor/internal/observability/logger"
	"github.com/grantorhq/grantor/internal/security/password"
	tokens "github.com/grantorhq/grantor/internal/security/token"
	"github.com/grantorhq/grantor/internal/store/core"
	"github.com/grantorhq/grantor/internal/validation"
)

const (
	clientIDPrefix = "client_"
	clientCacheTTL = 30 * time.Second
)

// Registry owns client identity: registration, secret verification and the
// capability checks (redirect URIs, scopes, grant types) the orchestrator
// relies on before touching any ledger.
type Registry struct {
	clients core.ClientRepository
	cache   cache.Cache
	hash    password.Params
}

type RegistryDeps struct {
	Clients core.ClientRepository
	Cache   cache.Cache // optional; nil disables the lookup cache
}

func NewRegistry(d RegistryDeps) *Registry {
	return &Registry{clients: d.Clients, cache: d.Cache, hash: password.Default}
}

type RegisterClientInput struct {
	Name         string
	RedirectURIs []string
	Scopes       []string
	GrantTypes   []string
	Confidential bool
}

// Register creates a client and, for confidential clients, a one-time
// plaintext secret. Only the secret's argon2id hash is persisted; the
// plaintext is returned exactly once and never recoverable afterwards.
func (r *Registry) Register(ctx context.Context, in RegisterClientInput) (*core.Client, string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, "", errf(KindInvalidRequest, "client name is required")
	}
	for _, s := range in.Scopes {
		if !validation.ValidScopeName(s) {
			return nil, "", errf(KindInvalidScope, "invalid scope name %q", s)
		}
	}

	var plaintext, secretHash string
	if in.Confidential {
		secret, err := tokens.GenerateOpaque(32)
		if err != nil {
			return nil, "", storageErr(err)
		}
		hash, err := password.Hash(r.hash, secret)
		if err != nil {
			return nil, "", storageErr(err)
		}
		plaintext, secretHash = secret, hash
	}

	now := time.Now().UTC()
	c := &core.Client{
		ID:           uuid.NewString(),
		ClientID:     clientIDPrefix + uuid.NewString(),
		SecretHash:   secretHash,
		Name:         in.Name,
		RedirectURIs: in.RedirectURIs,
		Scopes:       in.Scopes,
		GrantTypes:   in.GrantTypes,
		Confidential: in.Confidential,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	if err := r.clients.Create(sctx, c); err != nil {
		return nil, "", storageErr(err)
	}
	logger.From(ctx).With(logger.Layer("service"), logger.Op("client.register")).
		Info("client registered", logger.ClientID(c.ClientID), logger.Bool("confidential", c.Confidential))
	return c, plaintext, nil
}

// Lookup resolves a client by its public identifier, read-through cached.
func (r *Registry) Lookup(ctx context.Context, clientID string) (*core.Client, error) {
	if c := r.cached(clientID); c != nil {
		return c, nil
	}

	sctx, cancel := storeCtx(ctx)
	defer cancel()
	c, err := r.clients.GetByClientID(sctx, clientID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, errf(KindInvalidClient, "unknown client")
		}
		return nil, storageErr(err)
	}
	r.remember(c)
	return c, nil
}

// Authenticate verifies the supplied secret against the stored hash. Public
// clients pass without a secret check; confidential clients fail closed on
// mismatch or lookup failure.
func (r *Registry) Authenticate(ctx context.Context, clientID, suppliedSecret string) (*core.Client, error) {
	c, err := r.Lookup(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !c.Confidential {
		return c, nil
	}
	if !password.Verify(suppliedSecret, c.SecretHash) {
		return nil, errf(KindInvalidClient, "client authentication failed")
	}
	return c, nil
}

// ValidateRedirectURI requires an exact string match against the registered
// set. No prefix or wildcard matching.
func (r *Registry) ValidateRedirectURI(c *core.Client, uri string) error {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return nil
		}
	}
	return errf(KindInvalidRedirectURI, "redirect_uri not registered for client")
}

// ValidateScope checks that every space-delimited token of requested is in
// the client's allowed set. An empty request is always valid.
func (r *Registry) ValidateScope(c *core.Client, requested string) error {
	if strings.TrimSpace(requested) == "" {
		return nil
	}
	allowed := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := allowed[s]; !ok {
			return errf(KindInvalidScope, "scope %q not allowed for client", s)
		}
	}
	return nil
}

func (r *Registry) ValidateGrantType(c *core.Client, grantType string) error {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return nil
		}
	}
	return errf(KindUnauthorizedClient, "grant type %q not permitted for client", grantType)
}

// Update replaces the mutable client attributes (name, redirect URIs, scopes,
// grant types). The secret hash and confidentiality flag are immutable.
func (r *Registry) Update(ctx context.Context, c *core.Client) error {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	if err := r.clients.Update(sctx, c); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return errf(KindInvalidClient, "unknown client")
		}
		return storageErr(err)
	}
	r.forget(c.ClientID)
	return nil
}

func (r *Registry) Delete(ctx context.Context, clientID string) (bool, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	ok, err := r.clients.Delete(sctx, clientID)
	if err != nil {
		return false, storageErr(err)
	}
	r.forget(clientID)
	return ok, nil
}

func (r *Registry) List(ctx context.Context) ([]core.Client, error) {
	sctx, cancel := storeCtx(ctx)
	defer cancel()
	out, err := r.clients.List(sctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func clientCacheKey(clientID string) string { return "client:" + clientID }

func (r *Registry) cached(clientID string) *core.Client {
	if r.cache == nil {
		return nil
	}
	b, ok := r.cache.Get(clientCacheKey(clientID))
	if !ok {
		return nil
	}
	var c core.Client
	if err := json.Unmarshal(b, &c); err != nil {
		r.cache.Delete(clientCacheKey(clientID))
		return nil
	}
	return &c
}

func (r *Registry) remember(c *core.Client) {
	if r.cache == nil {
		return
	}
	if b, err := json.Marshal(c); err == nil {
		r.cache.Set(clientCacheKey(c.ClientID), b, clientCacheTTL)
	}
}

func (r *Registry) forget(clientID string) {
	if r.cache != nil {
		r.cache.Delete(clientCacheKey(clientID))
	}
}
