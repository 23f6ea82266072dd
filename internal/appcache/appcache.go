// Package appcache manages versioned app-shell caches on disk. Each
// deployed version gets its own cache directory; activating a version
// purges every stale generation so old assets can never be served after
// an upgrade.
package appcache

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
)

const (
	cachePrefix = "choremane-cache-"

	// fallbackTag names the cache used before any version metadata has
	// been seen.
	fallbackTag = "base-version"

	// reloadDebounce is the minimum gap between reload notices. Rapid
	// redeploys must not spam subscribers into a reload loop.
	reloadDebounce = 5 * time.Minute
)

// DefaultShell lists the assets prefetched into every cache generation.
var DefaultShell = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/favicon.ico",
}

// EventType classifies cache lifecycle notifications.
type EventType string

const (
	// EventUpdateAvailable tells subscribers a new version was cached and
	// a reload would pick it up.
	EventUpdateAvailable EventType = "update-available"

	// EventActivated fires when a cache generation becomes current.
	EventActivated EventType = "activated"
)

// Event is a cache lifecycle notification.
type Event struct {
	Type    EventType
	Version model.VersionInfo
}

// Manager owns the cache directory tree and the version-change policy.
type Manager struct {
	mu          sync.Mutex
	root        string
	api         *api.Client
	store       *localstore.Store
	logger      *slog.Logger
	now         func() time.Time
	shell       []string
	subscribers map[chan Event]struct{}
	dev         bool
}

// NewManager creates a cache manager rooted at dir. dev suppresses reload
// notices; local development reloads constantly on its own.
func NewManager(dir string, client *api.Client, store *localstore.Store, logger *slog.Logger, dev bool) *Manager {
	return &Manager{
		root:        dir,
		api:         client,
		store:       store,
		logger:      logger,
		now:         time.Now,
		shell:       DefaultShell,
		subscribers: make(map[chan Event]struct{}),
		dev:         dev,
	}
}

// CacheName returns the directory name for a version's cache generation.
// Unusable version metadata maps to the shared fallback generation.
func CacheName(v model.VersionInfo) string {
	if !v.Valid() {
		return cachePrefix + fallbackTag
	}
	return cachePrefix + v.VersionTag
}

// Install creates the cache generation for v and prefetches the app shell.
// Individual asset failures are logged and skipped; a partially warmed
// cache is still a usable cache.
func (m *Manager) Install(ctx context.Context, v model.VersionInfo) error {
	dir := filepath.Join(m.root, CacheName(v))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	for _, path := range m.shell {
		body, err := m.api.FetchAsset(ctx, path)
		if err != nil {
			m.logger.Warn("failed to prefetch asset", "path", path, "error", err)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, assetFileName(path)), body, 0o644); err != nil {
			return fmt.Errorf("write cached asset %s: %w", path, err)
		}
	}
	m.logger.Info("cache generation installed", "cache", CacheName(v))
	return nil
}

// Activate makes v's generation current and purges every other cache
// generation. Directories outside the cache prefix are left alone.
func (m *Manager) Activate(v model.VersionInfo) error {
	current := CacheName(v)

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache root: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, cachePrefix) || name == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, name)); err != nil {
			m.logger.Warn("failed to purge stale cache", "cache", name, "error", err)
			continue
		}
		m.logger.Info("purged stale cache", "cache", name)
	}

	m.broadcast(Event{Type: EventActivated, Version: v})
	return nil
}

// HandleVersion applies the version-change policy against the last version
// this client has seen. A change installs and activates the new generation
// and, outside dev and outside the debounce window, notifies subscribers
// that a reload would pick it up. Returns whether a change was applied.
func (m *Manager) HandleVersion(ctx context.Context, v model.VersionInfo) (bool, error) {
	if !v.Valid() {
		return false, nil
	}

	var last model.VersionInfo
	seen, err := m.store.GetJSON(localstore.KeyLastSeenVersion, &last)
	if err != nil {
		return false, err
	}
	if seen && last == v {
		return false, nil
	}

	if err := m.Install(ctx, v); err != nil {
		return false, err
	}
	if err := m.Activate(v); err != nil {
		return false, err
	}
	if err := m.store.SetJSON(localstore.KeyLastSeenVersion, v); err != nil {
		m.logger.Warn("failed to record seen version", "error", err)
	}

	if !seen {
		// First sight is baseline adoption, not an upgrade.
		return false, nil
	}
	if m.dev {
		m.logger.Debug("dev context, suppressing reload notice", "version", v.VersionTag)
		return true, nil
	}
	if m.withinDebounce() {
		m.logger.Debug("reload notice debounced", "version", v.VersionTag)
		return true, nil
	}

	m.broadcast(Event{Type: EventUpdateAvailable, Version: v})
	if err := m.store.Set(localstore.KeyLastReloadNotice, m.now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("failed to record reload notice", "error", err)
	}
	return true, nil
}

// Fetch serves an asset cache-first from the current generation, falling
// back to the network on a miss. Fallback responses are not written back;
// only Install warms the cache, so a generation always reflects exactly
// one deployed version.
func (m *Manager) Fetch(ctx context.Context, path string) ([]byte, error) {
	var last model.VersionInfo
	if _, err := m.store.GetJSON(localstore.KeyLastSeenVersion, &last); err != nil {
		m.logger.Warn("failed to read current version", "error", err)
	}

	file := filepath.Join(m.root, CacheName(last), assetFileName(path))
	if body, err := os.ReadFile(file); err == nil {
		return body, nil
	}

	body, err := m.api.FetchAsset(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	return body, nil
}

func (m *Manager) withinDebounce() bool {
	raw, ok, err := m.store.Get(localstore.KeyLastReloadNotice)
	if err != nil || !ok {
		return false
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	return m.now().Sub(last) < reloadDebounce
}

// Subscribe registers a lifecycle event channel. Events are dropped rather
// than blocking when a subscriber falls behind.
func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, 8)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel from Subscribe.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.mu.Lock()
	if _, ok := m.subscribers[ch]; ok {
		delete(m.subscribers, ch)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) broadcast(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			m.logger.Warn("subscriber buffer full, dropping event", "type", ev.Type)
		}
	}
}

// DevContext reports whether the backend URL points at a local development
// host.
func DevContext(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// assetFileName flattens an asset path into a single cache file name.
func assetFileName(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "index.html"
	}
	return strings.ReplaceAll(trimmed, "/", "_")
}
