package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/grantorhq/grantor/internal/oauth"
	"github.com/grantorhq/grantor/internal/store/core"
)

const adminKeyHeader = "X-Admin-API-Key"

// requireAdminKey guards the client management endpoints. With no key
// configured the endpoints are disabled outright.
func (h *Handlers) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		supplied := r.Header.Get(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.adminKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registerClientRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Confidential bool     `json:"confidential"`
}

type clientResponse struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"` // present only at registration
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Confidential bool     `json:"confidential"`
}

func clientToResponse(c *core.Client, secret string) clientResponse {
	return clientResponse{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		Confidential: c.Confidential,
	}
}

func (h *Handlers) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed JSON body"})
		return
	}
	client, secret, err := h.orch.RegisterClient(r.Context(), oauth.RegisterClientInput{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		GrantTypes:   req.GrantTypes,
		Confidential: req.Confidential,
	})
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clientToResponse(client, secret))
}

func (h *Handlers) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.orch.Registry().Lookup(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		if oauth.AsError(err).Kind == oauth.KindInvalidClient {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
			return
		}
		writeOAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientToResponse(client, ""))
}

func (h *Handlers) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.orch.Registry().List(r.Context())
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	out := make([]clientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, clientToResponse(&clients[i], ""))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	client, err := h.orch.Registry().Lookup(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	var req registerClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed JSON body"})
		return
	}
	if req.Name != "" {
		client.Name = req.Name
	}
	if req.RedirectURIs != nil {
		client.RedirectURIs = req.RedirectURIs
	}
	if req.Scopes != nil {
		client.Scopes = req.Scopes
	}
	if req.GrantTypes != nil {
		client.GrantTypes = req.GrantTypes
	}
	if err := h.orch.Registry().Update(r.Context(), client); err != nil {
		writeOAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientToResponse(client, ""))
}

func (h *Handlers) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.orch.Registry().Delete(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
