// Package identity authenticates resource owners. The grant machinery only
// consumes the resulting user identifier; credential handling lives here.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantorhq/grantor/internal/security/password"
	"github.com/grantorhq/grantor/internal/store/core"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUserExists         = errors.New("identity: user already exists")
)

// Provider resolves credentials to user identifiers.
type Provider interface {
	Authenticate(ctx context.Context, email, plainPassword string) (*core.User, error)
	Register(ctx context.Context, username, email, plainPassword string) (*core.User, error)
}

type provider struct {
	users core.UserRepository
	hash  password.Params
}

func NewProvider(users core.UserRepository) Provider {
	return &provider{users: users, hash: password.Default}
}

func (p *provider) Authenticate(ctx context.Context, email, plainPassword string) (*core.User, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(plainPassword, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (p *provider) Register(ctx context.Context, username, email, plainPassword string) (*core.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || plainPassword == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := password.Hash(p.hash, plainPassword)
	if err != nil {
		return nil, err
	}
	u := &core.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.users.Create(ctx, u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}
