package updates

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/stillon/choremane/internal/appcache"
	"github.com/stillon/choremane/internal/model"
)

const reconnectDelay = 5 * time.Second

// reloadMessage is the pushed notice that a new version was deployed.
type reloadMessage struct {
	Type    string            `json:"type"`
	Version model.VersionInfo `json:"version"`
}

// Realtime listens on the backend's WebSocket for pushed reload notices,
// reconnecting with a fixed delay for as long as it runs. It complements
// the polling watcher; losing the socket only delays updates until the
// next poll.
type Realtime struct {
	mu     sync.RWMutex
	url    string
	cache  *appcache.Manager
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRealtime creates a listener for the /ws endpoint under baseURL.
func NewRealtime(baseURL string, cache *appcache.Manager, logger *slog.Logger) *Realtime {
	return &Realtime{
		url:    wsURL(baseURL),
		cache:  cache,
		logger: logger,
	}
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Start begins the listen/reconnect loop.
func (r *Realtime) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		for {
			if err := r.listen(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("realtime connection lost", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

// Stop closes the connection and waits for the loop to exit.
func (r *Realtime) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// listen holds one connection open and applies reload notices until the
// connection drops or ctx is cancelled.
func (r *Realtime) listen(ctx context.Context) error {
	conn, _, err := ws.Dial(ctx, r.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(ws.StatusNormalClosure, "shutting down")

	r.logger.Debug("realtime connected", "url", r.url)
	for {
		var msg reloadMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		if msg.Type != "reload" {
			continue
		}
		if _, err := r.cache.HandleVersion(ctx, msg.Version); err != nil {
			r.logger.Warn("failed to apply pushed version", "error", err)
		}
	}
}
