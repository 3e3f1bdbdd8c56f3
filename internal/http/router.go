// Package http is the transport layer: routing, middleware and the mapping
// from grant outcomes to wire responses. It owns no protocol state.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantorhq/grantor/internal/identity"
	"github.com/grantorhq/grantor/internal/oauth"
)

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers bundles the route handlers and their dependencies.
type Handlers struct {
	orch     *oauth.Orchestrator
	idp      identity.Provider
	store    Pinger
	adminKey string
}

type HandlersDeps struct {
	Orchestrator *oauth.Orchestrator
	Identity     identity.Provider
	Store        Pinger
	AdminAPIKey  string
}

func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{orch: d.Orchestrator, idp: d.Identity, store: d.Store, adminKey: d.AdminAPIKey}
}

// NewRouter builds the full route tree with middleware applied.
func NewRouter(h *Handlers, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(withRequestID, withRecover, withSecurityHeaders, withLogging)

	r.Route("/oauth2", func(r chi.Router) {
		r.Post("/token", h.handleToken)
		r.Get("/authorize", h.handleAuthorize)
		r.Post("/authorize", h.handleAuthorize)
		r.Post("/revoke", h.handleRevoke)
		r.Post("/introspect", h.handleIntrospect)
	})

	r.Route("/admin/clients", func(r chi.Router) {
		r.Use(h.requireAdminKey)
		r.Post("/", h.handleRegisterClient)
		r.Get("/", h.handleListClients)
		r.Get("/{clientID}", h.handleGetClient)
		r.Put("/{clientID}", h.handleUpdateClient)
		r.Delete("/{clientID}", h.handleDeleteClient)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegisterUser)
		r.Post("/login", h.handleLogin)
	})

	r.Get("/healthz", h.handleHealth)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
