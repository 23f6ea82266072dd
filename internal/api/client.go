package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/stillon/choremane/internal/model"
)

// Session supplies credentials for outbound requests and absorbs the result
// of a token refresh. The session store implements it.
type Session interface {
	AccessToken() string
	RefreshToken() string
	UserEmail() string
	ApplyRefresh(model.TokenResponse)
	Clear()
}

// anonymousSession is used when no session store is wired (tests, status
// checks before login).
type anonymousSession struct{}

func (anonymousSession) AccessToken() string               { return "" }
func (anonymousSession) RefreshToken() string              { return "" }
func (anonymousSession) UserEmail() string                 { return "" }
func (anonymousSession) ApplyRefresh(model.TokenResponse)  {}
func (anonymousSession) Clear()                            {}

// Config holds client tuning knobs.
type Config struct {
	BaseURL    string
	MaxRetries uint64
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client talks to the Choremane REST backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	maxRetries uint64
	retryDelay time.Duration
	refresh    singleflight.Group
	logger     *slog.Logger
}

// New creates a client. session may be nil for unauthenticated use.
func New(cfg Config, session Session, logger *slog.Logger) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if session == nil {
		session = anonymousSession{}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		session:    session,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// do runs one API call: marshal body, attach headers, retry network
// failures with a fixed delay, refresh the token once on 401, decode the
// response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	status, respBody, err := c.roundTrip(ctx, method, path, query, payload)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		if refreshErr := c.refreshToken(ctx); refreshErr != nil {
			return refreshErr
		}
		// Replay exactly once with the refreshed token.
		status, respBody, err = c.roundTrip(ctx, method, path, query, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			c.session.Clear()
			return ErrUnauthorized
		}
	}

	if status < 200 || status >= 300 {
		return &HTTPError{StatusCode: status, Path: path, Body: respBody}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// roundTrip performs the HTTP exchange, retrying network-level failures up
// to the configured count with a constant delay. HTTP error statuses are
// returned to the caller, never retried here.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var status int
	var respBody []byte

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewConstant(c.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		c.decorate(req, payload != nil)

		requestsTotal.WithLabelValues(method).Inc()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			retriesTotal.Inc()
			c.logger.Warn("request failed, will retry", "method", method, "path", path, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		requestFailures.WithLabelValues("network").Inc()
		return 0, nil, &NetworkError{Path: path, Err: err}
	}
	if status >= 400 {
		requestFailures.WithLabelValues(fmt.Sprintf("http_%d", status)).Inc()
	}
	return status, respBody, nil
}

func (c *Client) decorate(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if email := c.session.UserEmail(); email != "" {
		req.Header.Set("X-User-Email", email)
	}
}

// refreshToken exchanges the stored refresh token for a new token triple.
// Concurrent callers share a single in-flight exchange; the refresh request
// itself is never retried and never triggers another refresh.
func (c *Client) refreshToken(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (any, error) {
		rt := c.session.RefreshToken()
		if rt == "" {
			c.session.Clear()
			return nil, ErrUnauthorized
		}

		tokenRefreshes.Inc()
		payload, err := json.Marshal(map[string]string{"refresh_token": rt})
		if err != nil {
			return nil, fmt.Errorf("marshal refresh request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &NetworkError{Path: "/auth/refresh", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			c.session.Clear()
			c.logger.Warn("token refresh rejected, logging out", "status", resp.StatusCode)
			return nil, ErrUnauthorized
		}

		var tokens model.TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
			return nil, fmt.Errorf("decode refresh response: %w", err)
		}
		c.session.ApplyRefresh(tokens)
		return nil, nil
	})
	return err
}

// RefreshToken exposes the single-flight refresh for the session store.
func (c *Client) RefreshToken(ctx context.Context) error {
	return c.refreshToken(ctx)
}
