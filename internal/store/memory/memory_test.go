package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grantorhq/grantor/internal/store/core"
)

func strptr(s string) *string { return &s }

func seedCode(t *testing.T, s *Store, code string) {
	t.Helper()
	err := s.Codes().Create(context.Background(), &core.AuthorizationCode{
		ID: "id-" + code, Code: code, ClientID: "c1", UserID: "u1",
		RedirectURI: "https://app/cb",
		ExpiresAt:   time.Now().Add(10 * time.Minute),
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func seedToken(t *testing.T, s *Store, id, access string, refresh *string) {
	t.Helper()
	now := time.Now().UTC()
	refreshExp := now.Add(24 * time.Hour)
	tok := &core.Token{
		ID: id, AccessToken: access, RefreshToken: refresh,
		ClientID: "c1", Scope: "read:profile", TokenType: "Bearer",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	if refresh != nil {
		tok.RefreshExpiresAt = &refreshExp
	}
	if err := s.Tokens().Create(context.Background(), tok); err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestConsume_ExactlyOneWinner(t *testing.T) {
	s := New()
	seedCode(t, s, "race-code")

	const n = 64
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Codes().Consume(context.Background(), "race-code")
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for ok := range wins {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestConsume_UnknownCode(t *testing.T) {
	s := New()
	ok, err := s.Codes().Consume(context.Background(), "missing")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ok {
		t.Fatal("consuming an unknown code must not win")
	}
}

func TestRevoke_EitherColumnIdempotent(t *testing.T) {
	s := New()
	seedToken(t, s, "t1", "access-1", strptr("refresh-1"))

	ok, err := s.Tokens().Revoke(context.Background(), "refresh-1")
	if err != nil || !ok {
		t.Fatalf("revoke by refresh: ok=%v err=%v", ok, err)
	}
	ok, err = s.Tokens().Revoke(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("revoke again: %v", err)
	}
	if ok {
		t.Fatal("second revoke on the same record must report false")
	}
}

func TestRotate_ConditionalOnLiveRecord(t *testing.T) {
	s := New()
	seedToken(t, s, "t1", "access-1", strptr("refresh-1"))

	replacement := &core.Token{
		ID: "t2", AccessToken: "access-2", RefreshToken: strptr("refresh-2"),
		ClientID: "c1", TokenType: "Bearer",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	if err := s.Tokens().Rotate(context.Background(), "t1", replacement); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	old, err := s.Tokens().GetByAccess(context.Background(), "access-1")
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if !old.Revoked {
		t.Fatal("rotation must revoke the old record")
	}
	if _, err := s.Tokens().GetByRefresh(context.Background(), "refresh-2"); err != nil {
		t.Fatalf("get replacement: %v", err)
	}

	// Replaying against the now-revoked record fails and writes nothing.
	again := &core.Token{
		ID: "t3", AccessToken: "access-3", ClientID: "c1", TokenType: "Bearer",
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
	if err := s.Tokens().Rotate(context.Background(), "t1", again); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound on replayed rotation, got %v", err)
	}
	if _, err := s.Tokens().GetByAccess(context.Background(), "access-3"); err != core.ErrNotFound {
		t.Fatal("failed rotation must not insert the replacement")
	}
}

func TestDeleteExpired_RespectsBothExpiries(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	// Access expired, refresh still live: keep.
	keep := &core.Token{
		ID: "keep", AccessToken: "a-keep", RefreshToken: strptr("r-keep"),
		ClientID: "c1", TokenType: "Bearer",
		ExpiresAt: past, RefreshExpiresAt: &future, CreatedAt: past,
	}
	// Both past: delete.
	drop := &core.Token{
		ID: "drop", AccessToken: "a-drop", RefreshToken: strptr("r-drop"),
		ClientID: "c1", TokenType: "Bearer",
		ExpiresAt: past, RefreshExpiresAt: &past, CreatedAt: past,
	}
	for _, tok := range []*core.Token{keep, drop} {
		if err := s.Tokens().Create(context.Background(), tok); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	n, err := s.Tokens().DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
	if _, err := s.Tokens().GetByAccess(context.Background(), "a-keep"); err != nil {
		t.Fatalf("live-refresh record must survive: %v", err)
	}
}

func TestClients_CreateConflictAndDelete(t *testing.T) {
	s := New()
	c := &core.Client{ID: "1", ClientID: "client_x", Name: "x"}

	if err := s.Clients().Create(context.Background(), c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Clients().Create(context.Background(), c); err != core.ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	ok, err := s.Clients().Delete(context.Background(), "client_x")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := s.Clients().GetByClientID(context.Background(), "client_x"); err != core.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsers_EmailLookupCaseInsensitive(t *testing.T) {
	s := New()
	u := &core.User{ID: "u1", Username: "ann", Email: "Ann@Example.com", PasswordHash: "h"}
	if err := s.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Users().GetByEmail(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("unexpected user %+v", got)
	}
}
