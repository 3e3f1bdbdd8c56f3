// Package memory is an in-process Repository used by tests and dev mode. It
// honors the same conditional-update contract as the postgres store: Consume,
// Revoke and Rotate are guarded by a single mutex, so exactly one concurrent
// caller wins each transition.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/grantorhq/grantor/internal/store/core"
)

type Store struct {
	mu sync.Mutex

	clients map[string]*core.Client            // client_id -> client
	codes   map[string]*core.AuthorizationCode // code -> record
	tokens  map[string]*core.Token             // record id -> record
	byAcc   map[string]string                  // access token -> record id
	byRef   map[string]string                  // refresh token -> record id
	users   map[string]*core.User              // user id -> user
}

func New() *Store {
	return &Store{
		clients: make(map[string]*core.Client),
		codes:   make(map[string]*core.AuthorizationCode),
		tokens:  make(map[string]*core.Token),
		byAcc:   make(map[string]string),
		byRef:   make(map[string]string),
		users:   make(map[string]*core.User),
	}
}

func (s *Store) Clients() core.ClientRepository { return (*clientRepo)(s) }
func (s *Store) Codes() core.CodeRepository     { return (*codeRepo)(s) }
func (s *Store) Tokens() core.TokenRepository   { return (*tokenRepo)(s) }
func (s *Store) Users() core.UserRepository     { return (*userRepo)(s) }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

// ------- clients -------

type clientRepo Store

func (r *clientRepo) Create(_ context.Context, c *core.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ClientID]; ok {
		return core.ErrConflict
	}
	cp := *c
	r.clients[c.ClientID] = &cp
	return nil
}

func (r *clientRepo) GetByClientID(_ context.Context, clientID string) (*core.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *clientRepo) Update(_ context.Context, c *core.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ClientID]; !ok {
		return core.ErrNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now().UTC()
	r.clients[c.ClientID] = &cp
	return nil
}

func (r *clientRepo) Delete(_ context.Context, clientID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return false, nil
	}
	delete(r.clients, clientID)
	return true, nil
}

func (r *clientRepo) List(_ context.Context) ([]core.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, *c)
	}
	return out, nil
}

// ------- authorization codes -------

type codeRepo Store

func (r *codeRepo) Create(_ context.Context, ac *core.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[ac.Code]; ok {
		return core.ErrConflict
	}
	cp := *ac
	r.codes[ac.Code] = &cp
	return nil
}

func (r *codeRepo) GetByCode(_ context.Context, code string) (*core.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac, ok := r.codes[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *ac
	return &cp, nil
}

func (r *codeRepo) Consume(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ac, ok := r.codes[code]
	if !ok || ac.Used {
		return false, nil
	}
	ac.Used = true
	return true, nil
}

func (r *codeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, ac := range r.codes {
		if now.After(ac.ExpiresAt) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

// ------- tokens -------

type tokenRepo Store

func (r *tokenRepo) Create(_ context.Context, t *core.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(t)
}

func (r *tokenRepo) insertLocked(t *core.Token) error {
	if _, ok := r.byAcc[t.AccessToken]; ok {
		return core.ErrConflict
	}
	if t.RefreshToken != nil {
		if _, ok := r.byRef[*t.RefreshToken]; ok {
			return core.ErrConflict
		}
	}
	cp := *t
	r.tokens[t.ID] = &cp
	r.byAcc[t.AccessToken] = t.ID
	if t.RefreshToken != nil {
		r.byRef[*t.RefreshToken] = t.ID
	}
	return nil
}

func (r *tokenRepo) GetByAccess(_ context.Context, accessToken string) (*core.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAcc[accessToken]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r.tokens[id]
	return &cp, nil
}

func (r *tokenRepo) GetByRefresh(_ context.Context, refreshToken string) (*core.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[refreshToken]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r.tokens[id]
	return &cp, nil
}

func (r *tokenRepo) Revoke(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byAcc[token]
	if !ok {
		id, ok = r.byRef[token]
	}
	if !ok {
		return false, nil
	}
	t := r.tokens[id]
	if t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r *tokenRepo) Rotate(_ context.Context, oldID string, replacement *core.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tokens[oldID]
	if !ok || old.Revoked {
		return core.ErrNotFound
	}
	old.Revoked = true
	return r.insertLocked(replacement)
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.tokens {
		accessGone := now.After(t.ExpiresAt)
		refreshGone := t.RefreshExpiresAt == nil || now.After(*t.RefreshExpiresAt)
		if accessGone && refreshGone {
			delete(r.byAcc, t.AccessToken)
			if t.RefreshToken != nil {
				delete(r.byRef, *t.RefreshToken)
			}
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}

// ------- users -------

type userRepo Store

func (r *userRepo) Create(_ context.Context, u *core.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.users {
		if strings.EqualFold(ex.Email, u.Email) || strings.EqualFold(ex.Username, u.Username) {
			return core.ErrConflict
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, id string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)
	return true, nil
}
