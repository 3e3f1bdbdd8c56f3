package core

import "time"

// Client is a registered OAuth2 client. SecretHash holds the argon2id PHC
// string of the client secret; it is empty for public clients. The transport
// layer serializes its own response type, so the hash stays internal even
// though it round-trips through the lookup cache.
type Client struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	SecretHash   string    `json:"secret_hash"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	GrantTypes   []string  `json:"grant_types"`
	Confidential bool      `json:"confidential"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthorizationCode is a single-use credential bound to a client, user and
// redirect URI. Used flips exactly once, via CodeRepository.Consume.
type AuthorizationCode struct {
	ID              string
	Code            string
	ClientID        string
	UserID          string
	RedirectURI     string
	Scope           string
	CodeChallenge   string // empty when the client did not send PKCE
	ChallengeMethod string // "S256" | "plain" | ""
	ExpiresAt       time.Time
	Used            bool
	CreatedAt       time.Time
}

// Token is one issued access/refresh pair. RefreshToken and UserID are nil
// for client_credentials grants. Rotation never mutates an existing row: the
// old row is revoked and a fresh one inserted.
type Token struct {
	ID               string
	AccessToken      string
	RefreshToken     *string
	ClientID         string
	UserID           *string
	Scope            string
	TokenType        string
	ExpiresAt        time.Time
	RefreshExpiresAt *time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// User is the minimal identity record the authorization server needs.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
