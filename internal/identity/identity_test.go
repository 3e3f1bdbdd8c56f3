package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/grantorhq/grantor/internal/store/memory"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	p := NewProvider(memory.New().Users())

	u, err := p.Register(context.Background(), "ann", "Ann@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "ann@example.com" {
		t.Fatalf("email must be normalized, got %q", u.Email)
	}
	if u.PasswordHash == "hunter2hunter2" {
		t.Fatal("plaintext password must never be stored")
	}

	got, err := p.Authenticate(context.Background(), "ann@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected %s, got %s", u.ID, got.ID)
	}

	if _, err := p.Authenticate(context.Background(), "ann@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := p.Authenticate(context.Background(), "ghost@example.com", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user must report invalid credentials, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	p := NewProvider(memory.New().Users())

	if _, err := p.Register(context.Background(), "ann", "ann@example.com", "pw-longenough"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := p.Register(context.Background(), "ann2", "ann@example.com", "pw-longenough"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}
