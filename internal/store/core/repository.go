package core

import (
	"context"
	"time"
)

// Repository groups the keyed collections the authorization server persists.
// Implementations: store/pg (pgxpool) and store/memory (dev/tests).
type Repository interface {
	Clients() ClientRepository
	Codes() CodeRepository
	Tokens() TokenRepository
	Users() UserRepository

	Ping(ctx context.Context) error
	Close()
}

type ClientRepository interface {
	Create(ctx context.Context, c *Client) error
	// GetByClientID returns ErrNotFound when no client matches.
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, clientID string) (bool, error)
	List(ctx context.Context) ([]Client, error)
}

type CodeRepository interface {
	Create(ctx context.Context, ac *AuthorizationCode) error
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// Consume flips used=false to used=true for the given code. It reports
	// whether this caller performed the flip; under concurrent redemption of
	// the same code exactly one caller observes true.
	Consume(ctx context.Context, code string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type TokenRepository interface {
	Create(ctx context.Context, t *Token) error
	GetByAccess(ctx context.Context, accessToken string) (*Token, error)
	GetByRefresh(ctx context.Context, refreshToken string) (*Token, error)
	// Revoke matches either the access or the refresh column and flips
	// revoked=true. It reports whether any live row changed, so a second
	// call on the same token returns false without error.
	Revoke(ctx context.Context, token string) (bool, error)
	// Rotate revokes the record identified by oldID and inserts the
	// replacement in one transaction. The revoke is conditional on
	// revoked=false: if another rotation already won, ErrNotFound is
	// returned and nothing is inserted.
	Rotate(ctx context.Context, oldID string, replacement *Token) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Delete(ctx context.Context, id string) (bool, error)
}
