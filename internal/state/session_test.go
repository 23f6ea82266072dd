package state

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
)

func openTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// makeIDToken builds an unsigned JWT carrying the given claims payload.
// Only the payload is decoded; the signature is never verified.
func makeIDToken(payload string) string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	return header + "." + enc.EncodeToString([]byte(payload)) + ".x"
}

func TestLoginDecodesProfile(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSessionStore(store, logger)

	s.Login(model.TokenResponse{
		AccessToken:  "tok",
		RefreshToken: "ref",
		IDToken:      makeIDToken(`{"name":"Sam Blake","email":"sam@example.com","preferred_username":"sam"}`),
		ExpiresIn:    3600,
	})

	if !s.IsAuthenticated() {
		t.Fatal("session should be authenticated after login")
	}
	if got := s.DisplayName(); got != "Sam Blake" {
		t.Errorf("DisplayName = %q, want %q", got, "Sam Blake")
	}
	if got := s.UserEmail(); got != "sam@example.com" {
		t.Errorf("UserEmail = %q, want %q", got, "sam@example.com")
	}
	if s.IsTokenExpired() {
		t.Error("token should not be expired right after login")
	}
}

func TestLoginMalformedIDTokenStillAuthenticates(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSessionStore(store, logger)

	s.Login(model.TokenResponse{AccessToken: "tok", IDToken: "garbage", ExpiresIn: 60})

	if !s.IsAuthenticated() {
		t.Error("a bad id token must not block login; it only feeds display fields")
	}
	if s.DisplayName() != "" {
		t.Errorf("DisplayName = %q, want empty", s.DisplayName())
	}
}

func TestSessionPersistsAcrossStores(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewSessionStore(store, logger)
	first.Login(model.TokenResponse{
		AccessToken:  "tok",
		RefreshToken: "ref",
		IDToken:      makeIDToken(`{"preferred_username":"sam"}`),
		ExpiresIn:    3600,
	})

	second := NewSessionStore(store, logger)
	if !second.IsAuthenticated() {
		t.Fatal("restored session should be authenticated")
	}
	if got := second.RefreshToken(); got != "ref" {
		t.Errorf("RefreshToken = %q, want %q", got, "ref")
	}
	if got := second.DisplayName(); got != "sam" {
		t.Errorf("DisplayName = %q, want %q", got, "sam")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewSessionStore(store, logger)
	s.Login(model.TokenResponse{AccessToken: "tok", RefreshToken: "ref", ExpiresIn: 3600})
	s.Logout()

	if s.IsAuthenticated() {
		t.Error("session should not be authenticated after logout")
	}
	if s.RefreshToken() != "" {
		t.Error("refresh token should be cleared")
	}

	restored := NewSessionStore(store, logger)
	if restored.IsAuthenticated() {
		t.Error("logout should remove the persisted session")
	}
}

func TestApplyRefreshKeepsOmittedTokens(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewSessionStore(store, logger)
	s.Login(model.TokenResponse{
		AccessToken:  "old",
		RefreshToken: "ref",
		IDToken:      makeIDToken(`{"preferred_username":"sam"}`),
		ExpiresIn:    3600,
	})

	// Refresh responses may omit id and refresh tokens.
	s.ApplyRefresh(model.TokenResponse{AccessToken: "new", ExpiresIn: 3600})

	if got := s.AccessToken(); got != "new" {
		t.Errorf("AccessToken = %q, want %q", got, "new")
	}
	if got := s.RefreshToken(); got != "ref" {
		t.Errorf("RefreshToken = %q, want %q", got, "ref")
	}
	if got := s.DisplayName(); got != "sam" {
		t.Errorf("profile should survive refresh, DisplayName = %q", got)
	}
}

func TestIsTokenExpired(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewSessionStore(store, logger)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.Login(model.TokenResponse{AccessToken: "tok", ExpiresIn: 300})

	if s.IsTokenExpired() {
		t.Error("token should be valid before its expiry")
	}
	s.now = func() time.Time { return base.Add(301 * time.Second) }
	if !s.IsTokenExpired() {
		t.Error("token should be expired after its expiry passes")
	}
}

type fakeRefresher struct{ err error }

func (f fakeRefresher) RefreshToken(context.Context) error { return f.err }

func TestRefreshAccessToken(t *testing.T) {
	store := openTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := NewSessionStore(store, logger)
	s.Login(model.TokenResponse{AccessToken: "tok", RefreshToken: "ref", ExpiresIn: 60})
	if !s.RefreshAccessToken(context.Background(), fakeRefresher{}) {
		t.Error("successful refresh should keep the session")
	}

	s.Login(model.TokenResponse{AccessToken: "tok", RefreshToken: "ref", ExpiresIn: 60})
	if s.RefreshAccessToken(context.Background(), fakeRefresher{err: errors.New("boom")}) {
		t.Error("failed refresh should force logout")
	}
	if s.IsAuthenticated() {
		t.Error("session should be cleared after failed refresh")
	}

	// Missing refresh token short-circuits to logout.
	s.Login(model.TokenResponse{AccessToken: "tok", ExpiresIn: 60})
	if s.RefreshAccessToken(context.Background(), fakeRefresher{}) {
		t.Error("missing refresh token should force logout")
	}
}
