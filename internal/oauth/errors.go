package oauth

import "fmt"

// ErrorKind enumerates every expected failure of the grant machinery. Callers
// switch on the kind; transports own the mapping from kind to wire status.
type ErrorKind int

const (
	KindInvalidClient ErrorKind = iota
	KindInvalidGrant
	KindInvalidRequest
	KindInvalidScope
	KindInvalidRedirectURI
	KindUnauthorizedClient
	KindUnsupportedGrantType
	KindUnsupportedResponseType
	KindStorage
)

// Error is the tagged result type for all grant failures. Validation failures
// carry a stable protocol code; storage failures additionally wrap the cause,
// which is never surfaced to clients.
type Error struct {
	Kind        ErrorKind
	Description string
	cause       error
}

func (e *Error) Error() string {
	if e.Description != "" {
		return e.Code() + ": " + e.Description
	}
	return e.Code()
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the protocol-level error code for the kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindInvalidClient:
		return "invalid_client"
	case KindInvalidGrant:
		return "invalid_grant"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidScope:
		return "invalid_scope"
	case KindInvalidRedirectURI:
		return "invalid_redirect_uri"
	case KindUnauthorizedClient:
		return "unauthorized_client"
	case KindUnsupportedGrantType:
		return "unsupported_grant_type"
	case KindUnsupportedResponseType:
		return "unsupported_response_type"
	case KindStorage:
		return "server_error"
	default:
		return "server_error"
	}
}

func errf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// storageErr wraps an unexpected persistence failure. The cause stays inside
// the process; clients only ever see "server_error".
func storageErr(err error) *Error {
	return &Error{Kind: KindStorage, Description: "storage failure", cause: err}
}

// AsError returns err as *Error when it carries a kind, or wraps it as a
// storage failure otherwise. Transports call this at the boundary so every
// failure they see is kinded.
func AsError(err error) *Error {
	if oe, ok := err.(*Error); ok {
		return oe
	}
	return storageErr(err)
}
