package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
)

// maxLogEntries caps the in-memory and cached feed.
const maxLogEntries = 100

// Entry is a display-ready activity record. Server entries carry an ID;
// provisional entries added locally before the next fetch carry a LocalID.
type Entry struct {
	ID         int64          `json:"id,omitempty"`
	LocalID    string         `json:"local_id,omitempty"`
	ChoreID    *int64         `json:"chore_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Kind       string         `json:"kind"`
	Details    map[string]any `json:"details,omitempty"`
	Label      string         `json:"label"`
	Hidden     bool           `json:"hidden,omitempty"`
	Local      bool           `json:"local,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// LogStore holds the normalized activity feed. Server fetches replace any
// provisional local entries; the feed is cached so the client shows history
// immediately on the next start.
type LogStore struct {
	mu      sync.Mutex
	api     *api.Client
	store   *localstore.Store
	logger  *slog.Logger
	now     func() time.Time
	entries []Entry
}

// NewLogStore creates a log store, restoring the cached feed when present.
func NewLogStore(client *api.Client, store *localstore.Store, logger *slog.Logger) *LogStore {
	l := &LogStore{api: client, store: store, logger: logger, now: time.Now}

	var cached []Entry
	if ok, err := store.GetJSON(localstore.KeyLogCache, &cached); err != nil {
		logger.Warn("failed to restore log cache", "error", err)
	} else if ok {
		l.entries = cached
	}
	if len(l.entries) == 0 {
		l.entries = []Entry{{
			LocalID:    uuid.NewString(),
			Kind:       model.ActionCreated,
			Label:      "Activity log initialized",
			Local:      true,
			OccurredAt: l.now(),
		}}
	}
	return l
}

// Fetch replaces the feed with the server's, normalized for display.
// Provisional local entries are superseded.
func (l *LogStore) Fetch(ctx context.Context) error {
	raw, err := l.api.Logs(ctx)
	if err != nil {
		l.logger.Warn("failed to fetch activity log", "error", err)
		return err
	}

	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, normalize(e))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.After(entries[j].OccurredAt)
	})
	if len(entries) > maxLogEntries {
		entries = entries[:maxLogEntries]
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	l.persist()
	return nil
}

// AddLocalEntry prepends a provisional entry so the feed reflects an action
// immediately, before the next server fetch.
func (l *LogStore) AddLocalEntry(label, kind string) {
	entry := Entry{
		LocalID:    uuid.NewString(),
		Kind:       kind,
		Label:      label,
		Hidden:     kind == model.ActionUndo,
		Local:      true,
		OccurredAt: l.now(),
	}

	l.mu.Lock()
	l.entries = append([]Entry{entry}, l.entries...)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[:maxLogEntries]
	}
	l.mu.Unlock()
	l.persist()
}

// Entries returns a copy of the full feed, newest first.
func (l *LogStore) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Visible returns the feed with hidden entries filtered out.
func (l *LogStore) Visible() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.Hidden {
			out = append(out, e)
		}
	}
	return out
}

func (l *LogStore) persist() {
	l.mu.Lock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()
	if err := l.store.SetJSON(localstore.KeyLogCache, snapshot); err != nil {
		l.logger.Warn("failed to cache activity log", "error", err)
	}
}

// normalize converts a wire entry into its display form.
func normalize(e model.LogEntry) Entry {
	details := decodeDetails(e.ActionDetails)
	label, hidden := describe(e, details)

	entry := Entry{
		ID:         e.ID,
		ChoreID:    e.ChoreID,
		Kind:       e.ActionType,
		Details:    details,
		Label:      label,
		Hidden:     hidden,
		OccurredAt: parseTimestamp(e.DoneAt),
	}
	if e.DoneBy != nil {
		entry.Actor = *e.DoneBy
	}
	return entry
}

// decodeDetails accepts action_details as either a JSON object or a
// JSON-encoded string containing an object. Anything else yields nil.
func decodeDetails(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			return m
		}
	}
	return nil
}

// describe derives the display label. Entries that reference no nameable
// chore, and undo records, are flagged hidden rather than dropped so the
// feed remains a faithful history.
func describe(e model.LogEntry, details map[string]any) (label string, hidden bool) {
	switch e.ActionType {
	case model.ActionImport:
		return "Imported data", false
	case model.ActionExport:
		return "Exported data", false
	}

	name := choreName(details)
	if name == "" && e.ChoreID != nil {
		name = fmt.Sprintf("chore #%d", *e.ChoreID)
	}
	if name == "" {
		return "", true
	}

	switch e.ActionType {
	case model.ActionCreated:
		return "Created " + name, false
	case model.ActionUpdated:
		return "Updated " + name, false
	case model.ActionMarkedDone:
		return name + " marked as done", false
	case model.ActionArchived:
		return "Archived " + name, false
	case model.ActionUnarchived:
		return "Restored " + name, false
	case model.ActionUndo:
		return "Undid change to " + name, true
	default:
		return name, false
	}
}

func choreName(details map[string]any) string {
	if details == nil {
		return ""
	}
	if v, ok := details["name"].(string); ok && v != "" {
		return v
	}
	if prev, ok := details["previous_state"].(map[string]any); ok {
		if v, ok := prev["name"].(string); ok {
			return v
		}
	}
	return ""
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
