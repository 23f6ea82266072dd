// Package api is the HTTP client for the Choremane backend. It attaches
// the caller's credentials to every request, retries transient network
// failures, and refreshes the access token once on 401 before giving up.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is any non-2xx response from the backend.
type HTTPError struct {
	StatusCode int
	Path       string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Path, e.StatusCode)
}

// NetworkError wraps a failure where no HTTP response was received, after
// retries were exhausted.
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AlreadyDoneError is the 409 conflict from mark-done: the chore was
// completed earlier in the current period. Recoverable; LastDone carries the
// server's authoritative completion date when provided.
type AlreadyDoneError struct {
	Message  string
	LastDone string
}

func (e *AlreadyDoneError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "chore already completed today"
}

// ErrUnauthorized is returned when a request fails with 401 and the session
// could not be refreshed.
var ErrUnauthorized = errors.New("unauthorized")

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusNotFound
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 500
}

// IsNetwork reports whether err is a network-level failure (no response).
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
