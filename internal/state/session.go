// Package state holds the client-side stores: session credentials, the
// chore collections with their derived views, and the activity log. Stores
// are safe for concurrent use and persist durable fields through the local
// store.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
)

// SessionStore holds the signed-in user's credential state. It implements
// api.Session so the HTTP client can decorate requests and apply refreshed
// tokens.
type SessionStore struct {
	mu      sync.RWMutex
	session model.Session
	store   *localstore.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionStore creates a session store, restoring any persisted session.
func NewSessionStore(store *localstore.Store, logger *slog.Logger) *SessionStore {
	s := &SessionStore{store: store, logger: logger, now: time.Now}

	var persisted model.Session
	if ok, err := store.GetJSON(localstore.KeySession, &persisted); err != nil {
		logger.Warn("failed to restore session", "error", err)
	} else if ok {
		s.session = persisted
	}
	return s
}

// Login installs a fresh token triple from the auth callback. The ID token
// payload is decoded without signature verification; it feeds display
// fields only and is never a trust boundary.
func (s *SessionStore) Login(tokens model.TokenResponse) {
	s.mu.Lock()
	s.applyLocked(tokens)
	s.mu.Unlock()
	s.persist()
}

// ApplyRefresh rotates tokens after a successful refresh. Absent id or
// refresh tokens in the response leave the previous values in place.
func (s *SessionStore) ApplyRefresh(tokens model.TokenResponse) {
	s.mu.Lock()
	s.applyLocked(tokens)
	s.mu.Unlock()
	s.persist()
}

func (s *SessionStore) applyLocked(tokens model.TokenResponse) {
	s.session.AccessToken = tokens.AccessToken
	if tokens.IDToken != "" {
		s.session.IDToken = tokens.IDToken
		s.session.Profile = decodeProfile(tokens.IDToken, s.logger)
	}
	if tokens.RefreshToken != "" {
		s.session.RefreshToken = tokens.RefreshToken
	}
	s.session.ExpiresAt = s.now().Add(time.Duration(tokens.ExpiresIn) * time.Second)
}

// decodeProfile extracts display claims from the ID token payload.
func decodeProfile(idToken string, logger *slog.Logger) model.Profile {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		logger.Warn("failed to decode id token", "error", err)
		return model.Profile{}
	}

	str := func(key string) string {
		if v, ok := claims[key].(string); ok {
			return v
		}
		return ""
	}
	return model.Profile{
		Name:     str("name"),
		Email:    str("email"),
		Username: str("preferred_username"),
	}
}

// RefreshAccessToken exchanges the stored refresh token via the given
// refresher (the API client). Failure or a missing refresh token forces
// logout. Returns whether the session is still authenticated.
func (s *SessionStore) RefreshAccessToken(ctx context.Context, refresher interface {
	RefreshToken(context.Context) error
}) bool {
	if s.RefreshToken() == "" {
		s.Logout()
		return false
	}
	if err := refresher.RefreshToken(ctx); err != nil {
		s.logger.Warn("token refresh failed", "error", err)
		s.Logout()
		return false
	}
	return true
}

// Logout clears all session fields, in memory and persisted.
func (s *SessionStore) Logout() {
	s.mu.Lock()
	s.session = model.Session{}
	s.mu.Unlock()
	if err := s.store.Delete(localstore.KeySession); err != nil {
		s.logger.Warn("failed to clear persisted session", "error", err)
	}
}

// Clear implements api.Session; identical to Logout.
func (s *SessionStore) Clear() { s.Logout() }

func (s *SessionStore) persist() {
	s.mu.RLock()
	snapshot := s.session
	s.mu.RUnlock()
	if err := s.store.SetJSON(localstore.KeySession, snapshot); err != nil {
		s.logger.Warn("failed to persist session", "error", err)
	}
}

// AccessToken returns the current bearer token, empty when signed out.
func (s *SessionStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.AccessToken
}

// RefreshToken returns the stored refresh token.
func (s *SessionStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RefreshToken
}

// IsAuthenticated reports whether an access token is present.
func (s *SessionStore) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// IsTokenExpired reports whether the access token's expiry has passed.
func (s *SessionStore) IsTokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.session.ExpiresAt.IsZero() && s.now().After(s.session.ExpiresAt)
}

// UserEmail returns the profile email, falling back to the username.
func (s *SessionStore) UserEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.Profile.Email != "" {
		return s.session.Profile.Email
	}
	return s.session.Profile.Username
}

// DisplayName returns the best available human name for the user.
func (s *SessionStore) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.session.Profile.Name != "":
		return s.session.Profile.Name
	case s.session.Profile.Username != "":
		return s.session.Profile.Username
	default:
		return s.session.Profile.Email
	}
}
