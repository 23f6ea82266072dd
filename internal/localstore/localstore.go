// Package localstore is the client's persistent key-value state: session
// fields, notification settings, the cached activity feed, and version
// tracking. Values are strings (JSON for structured keys), mirroring the
// flat string-keyed storage the rest of the client assumes. There is no
// transactional guarantee across keys; multi-key updates must tolerate
// partial completion.
package localstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Well-known keys.
const (
	KeySession              = "session"
	KeyNotificationSettings = "notificationSettings"
	KeyLogCache             = "logEntries"
	KeyPushSubscription     = "pushSubscription"
	KeySchemaVersion        = "storage_schema_version"
	KeyLastSeenVersion      = "appVersionInfo"
	KeyLastReloadNotice     = "last_reload_notice"
	KeyLastNotification     = "lastNotification"
	KeyLastBackup           = "last_backup"
)

// SchemaVersion identifies the current local-storage layout. Bumping it
// clears the keys listed in staleKeys on next open.
const SchemaVersion = "2"

// staleKeys are cleared when the stored schema version differs from
// SchemaVersion. Older layouts used these for version tracking and caused
// reload loops when interpreted by newer code.
var staleKeys = []string{
	"choremane_current_version",
	"choremane_dismissed_update",
	"appVersionInfo",
	KeyLastReloadNotice,
}

// Store is a SQLite-backed string key-value store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the local store at path and runs migrations.
// Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrateSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key. ok is false when the key is absent.
func (s *Store) Get(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes a value, replacing any existing one.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// GetJSON decodes the stored JSON value into out. A missing key returns
// ok=false. A malformed value is dropped and replaced by the zero state
// rather than propagated: persisted garbage must never take the client down.
func (s *Store) GetJSON(key string, out any) (ok bool, err error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		s.logger.Warn("discarding malformed stored value", "key", key, "error", err)
		if delErr := s.Delete(key); delErr != nil {
			return false, delErr
		}
		return false, nil
	}
	return true, nil
}

// SetJSON stores v as JSON.
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return s.Set(key, string(raw))
}

// migrateSchema clears known-stale keys when the stored layout version
// differs from SchemaVersion. Each delete is independent so an interrupted
// migration simply resumes on the next open.
func (s *Store) migrateSchema() error {
	current, ok, err := s.Get(KeySchemaVersion)
	if err != nil {
		return err
	}
	if ok && current == SchemaVersion {
		return nil
	}

	s.logger.Info("migrating local storage", "from", current, "to", SchemaVersion)
	for _, key := range staleKeys {
		if err := s.Delete(key); err != nil {
			s.logger.Warn("failed to clear stale key", "key", key, "error", err)
		}
	}
	return s.Set(KeySchemaVersion, SchemaVersion)
}
