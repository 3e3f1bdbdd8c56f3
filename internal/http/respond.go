package http

import (
	"encoding/json"
	"net/http"

	"github.com/grantorhq/grantor/internal/oauth"
	"github.com/grantorhq/grantor/internal/observability/logger"
)

// statusFor is the single mapping from error kind to HTTP status. The grant
// machinery never sees an HTTP status.
func statusFor(kind oauth.ErrorKind) int {
	switch kind {
	case oauth.KindInvalidClient:
		return http.StatusUnauthorized
	case oauth.KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type oauthErrorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeOAuthError serializes a kinded error in the standard wire shape.
// Storage causes are logged server-side and never leak into the body.
func writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	oe := oauth.AsError(err)
	status := statusFor(oe.Kind)

	body := oauthErrorBody{Error: oe.Code(), Description: oe.Description}
	if oe.Kind == oauth.KindStorage {
		body.Description = ""
		logger.From(r.Context()).Error("storage failure", logger.Err(oe.Unwrap()))
	}
	if oe.Kind == oauth.KindInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2", charset="UTF-8"`)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
