package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/grantorhq/grantor/internal/identity"
	"github.com/grantorhq/grantor/internal/oauth"
)

// handleToken is the grant dispatch endpoint. Client credentials come from
// HTTP Basic auth or, failing that, the form body.
func (h *Handlers) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed form body"})
		return
	}

	clientID, clientSecret := clientCredentials(r)
	req := oauth.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		Scope:        r.PostFormValue("scope"),
	}

	pair, err := h.orch.Token(r.Context(), req)
	if err != nil {
		observeGrant(req.GrantType, oauth.AsError(err).Code())
		writeOAuthError(w, r, err)
		return
	}
	observeGrant(req.GrantType, "success")

	// Token responses must never be cached.
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		RefreshToken: pair.RefreshToken,
		Scope:        pair.Scope,
	})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleAuthorize is the headless authorization endpoint: the resource
// owner's credentials ride along with the request and are verified by the
// identity provider before a code is bound to the user. There is no consent
// page; machine clients follow redirect_to themselves.
func (h *Handlers) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed form body"})
		return
	}

	email := r.FormValue("email")
	pass := r.FormValue("password")
	if email == "" || pass == "" {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "resource owner credentials are required"})
		return
	}
	user, err := h.idp.Authenticate(r.Context(), email, pass)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "access_denied"})
			return
		}
		writeOAuthError(w, r, err)
		return
	}

	code, err := h.orch.Authorize(r.Context(), oauth.AuthorizeRequest{
		ClientID:      r.FormValue("client_id"),
		RedirectURI:   r.FormValue("redirect_uri"),
		ResponseType:  r.FormValue("response_type"),
		Scope:         r.FormValue("scope"),
		State:         r.FormValue("state"),
		PKCEChallenge: r.FormValue("code_challenge"),
		PKCEMethod:    r.FormValue("code_challenge_method"),
		UserID:        user.ID,
	})
	if err != nil {
		writeOAuthError(w, r, err)
		return
	}

	resp := map[string]string{
		"code":  code.Code,
		"state": r.FormValue("state"),
	}
	// Registered URIs are matched as opaque strings, so one can fail to parse
	// here. The caller still gets the code; only redirect_to is omitted.
	if redirect, err := url.Parse(code.RedirectURI); err == nil {
		q := redirect.Query()
		q.Set("code", code.Code)
		if state := r.FormValue("state"); state != "" {
			q.Set("state", state)
		}
		redirect.RawQuery = q.Encode()
		resp["redirect_to"] = redirect.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRevoke invalidates the presented token. Per RFC 7009 the endpoint
// answers 200 even for unknown tokens; only missing input or storage trouble
// is an error.
func (h *Handlers) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed form body"})
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "token is required"})
		return
	}
	if err := h.orch.Revoke(r.Context(), token); err != nil {
		writeOAuthError(w, r, err)
		return
	}
	observeRevocation()
	w.WriteHeader(http.StatusOK)
}

type introspectResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// handleIntrospect reports whether an access token is live. Dead or unknown
// tokens answer active=false with 200, never an error, so resource servers
// can treat the response uniformly.
func (h *Handlers) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "malformed form body"})
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		writeOAuthError(w, r, &oauth.Error{Kind: oauth.KindInvalidRequest, Description: "token is required"})
		return
	}

	rec, err := h.orch.Introspect(r.Context(), token)
	if err != nil {
		if oauth.AsError(err).Kind == oauth.KindStorage {
			writeOAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}

	resp := introspectResponse{
		Active:    true,
		ClientID:  rec.ClientID,
		Scope:     rec.Scope,
		TokenType: rec.TokenType,
		Sub:       rec.ClientID,
		Exp:       rec.ExpiresAt.Unix(),
		Iat:       rec.CreatedAt.Unix(),
	}
	if rec.UserID != nil {
		resp.Sub = *rec.UserID
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientCredentials extracts client_id/client_secret from Basic auth with a
// form fallback.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}
