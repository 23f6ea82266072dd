// Package updates keeps the client current with backend deployments: a
// polling watcher for version changes and a WebSocket listener for pushed
// reload notices. Both feed the appcache manager, which owns the actual
// install/activate/notify policy.
package updates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/appcache"
	"github.com/stillon/choremane/internal/model"
)

// Backend reachability as seen by the watcher.
const (
	StatusOK          = "ok"
	StatusRedeploying = "redeploying"
	StatusUnreachable = "unreachable"
)

const defaultPollInterval = 5 * time.Minute

// Watcher polls GET /version and hands changes to the cache manager.
type Watcher struct {
	mu       sync.RWMutex
	api      *api.Client
	cache    *appcache.Manager
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	status   string
}

// NewWatcher creates a version watcher. interval <= 0 uses the default.
func NewWatcher(client *api.Client, cache *appcache.Manager, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		api:      client,
		cache:    cache,
		logger:   logger,
		interval: interval,
		status:   StatusOK,
	}
}

// Start begins the polling loop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.Check(ctx); err != nil {
					w.logger.Warn("version check failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the polling loop.
func (w *Watcher) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	done := w.done
	w.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Check fetches the deployed version once and applies any change. A 5xx is
// read as a redeploy in progress, not a failure: the next poll will see the
// new version.
func (w *Watcher) Check(ctx context.Context) (model.VersionInfo, error) {
	info, err := w.api.Version(ctx)
	if err != nil {
		switch {
		case api.IsServerError(err):
			w.setStatus(StatusRedeploying)
			w.logger.Info("backend likely redeploying")
			return model.VersionInfo{}, nil
		case api.IsNetwork(err):
			w.setStatus(StatusUnreachable)
		}
		return model.VersionInfo{}, err
	}

	w.setStatus(StatusOK)
	if _, err := w.cache.HandleVersion(ctx, info); err != nil {
		return info, err
	}
	return info, nil
}

// Status returns the backend reachability seen by the last check.
func (w *Watcher) Status() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Watcher) setStatus(s string) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}
