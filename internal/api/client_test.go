package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stillon/choremane/internal/model"
)

type fakeSession struct {
	mu      sync.Mutex
	access  string
	refresh string
	email   string
	cleared bool
}

func (s *fakeSession) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *fakeSession) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *fakeSession) UserEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

func (s *fakeSession) ApplyRefresh(t model.TokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = t.AccessToken
	if t.RefreshToken != "" {
		s.refresh = t.RefreshToken
	}
}

func (s *fakeSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
	s.cleared = true
}

func newTestClient(t *testing.T, srv *httptest.Server, session Session) *Client {
	t.Helper()
	return New(Config{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}, session, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestAttachesAuthHeaders(t *testing.T) {
	var gotAuth, gotEmail string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotEmail = r.Header.Get("X-User-Email")
		json.NewEncoder(w).Encode([]model.Chore{})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, &fakeSession{access: "tok", email: "sam@example.com"})
	if _, err := c.ListChores(context.Background(), 1, 10); err != nil {
		t.Fatalf("list chores: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok")
	}
	if gotEmail != "sam@example.com" {
		t.Errorf("X-User-Email = %q, want %q", gotEmail, "sam@example.com")
	}
}

func TestRetriesNetworkFailure(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack: %v", err)
			}
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode([]model.Chore{{ID: 1, Name: "dishes"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	chores, err := c.ListChores(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(chores) != 1 {
		t.Fatalf("got %d chores, want 1", len(chores))
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestNetworkFailureSurfacedAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.ListChores(context.Background(), 1, 10)
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/chores", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]model.Chore{})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		// Hold the refresh open so both 401s land while it is in flight.
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(model.TokenResponse{
			AccessToken:  "new",
			RefreshToken: "new-refresh",
			ExpiresIn:    3600,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := &fakeSession{access: "old", refresh: "r1"}
	c := newTestClient(t, srv, session)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListChores(context.Background(), 1, 10)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if session.AccessToken() != "new" {
		t.Errorf("access token = %q, want %q", session.AccessToken(), "new")
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chores", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	session := &fakeSession{access: "old", refresh: "r1"}
	c := newTestClient(t, srv, session)

	_, err := c.ListChores(context.Background(), 1, 10)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !session.cleared {
		t.Error("session should be cleared after refresh failure")
	}
}

func TestMarkDoneConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"detail": map[string]string{
				"message":   "Chore already completed today",
				"last_done": "2026-02-05",
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.MarkChoreDone(context.Background(), 7, "sam")

	var conflict *AlreadyDoneError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected AlreadyDoneError, got %v", err)
	}
	if conflict.LastDone != "2026-02-05" {
		t.Errorf("last_done = %q, want %q", conflict.LastDone, "2026-02-05")
	}
}

func TestNotFoundTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.ArchiveChore(context.Background(), 99)
	if !IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
