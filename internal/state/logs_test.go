package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stillon/choremane/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestFetchNormalizesActionDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/", backendMux())
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		// Details arrive as an object, as a JSON-encoded string, and absent.
		json.NewEncoder(w).Encode([]model.LogEntry{
			{
				ID: 1, ChoreID: ptr(int64(4)), ActionType: model.ActionCreated,
				DoneAt:        "2026-03-01T10:00:00",
				ActionDetails: json.RawMessage(`{"name":"vacuum"}`),
			},
			{
				ID: 2, ChoreID: ptr(int64(5)), ActionType: model.ActionUpdated,
				DoneAt:        "2026-03-01T09:00:00",
				ActionDetails: json.RawMessage(`"{\"previous_state\":{\"name\":\"dust shelves\"}}"`),
			},
			{
				ID: 3, ChoreID: ptr(int64(6)), ActionType: model.ActionMarkedDone,
				DoneAt: "2026-03-01T08:00:00",
			},
		})
	})
	e := newEnv(t, mux)

	if err := e.logs.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	entries := e.logs.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Label != "Created vacuum" {
		t.Errorf("object details label = %q, want %q", entries[0].Label, "Created vacuum")
	}
	if entries[1].Label != "Updated dust shelves" {
		t.Errorf("string details label = %q, want %q", entries[1].Label, "Updated dust shelves")
	}
	if entries[2].Label != "chore #6 marked as done" {
		t.Errorf("fallback label = %q, want %q", entries[2].Label, "chore #6 marked as done")
	}
}

func TestFetchHidesUnattributableAndUndoEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/", backendMux())
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.LogEntry{
			{ID: 1, ActionType: model.ActionArchived, DoneAt: "2026-03-01T10:00:00"},
			{
				ID: 2, ChoreID: ptr(int64(9)), ActionType: model.ActionUndo,
				DoneAt: "2026-03-01T09:00:00",
			},
			{ID: 3, ActionType: model.ActionExport, DoneAt: "2026-03-01T08:00:00"},
		})
	})
	e := newEnv(t, mux)

	if err := e.logs.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	visible := e.logs.Visible()
	if len(visible) != 1 {
		t.Fatalf("got %d visible entries, want 1", len(visible))
	}
	if visible[0].Label != "Exported data" {
		t.Errorf("visible label = %q, want %q", visible[0].Label, "Exported data")
	}
	for _, entry := range e.logs.Entries() {
		if entry.ID == 1 && !entry.Hidden {
			t.Error("entry without chore reference should be hidden")
		}
		if entry.ID == 2 && !entry.Hidden {
			t.Error("undo entry should be hidden")
		}
	}
}

func TestFetchCapsFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/", backendMux())
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		entries := make([]model.LogEntry, 0, maxLogEntries+50)
		for i := 0; i < maxLogEntries+50; i++ {
			entries = append(entries, model.LogEntry{
				ID:            int64(i + 1),
				ChoreID:       ptr(int64(1)),
				ActionType:    model.ActionMarkedDone,
				DoneAt:        fmt.Sprintf("2026-03-01T%02d:%02d:00", i/60, i%60),
				ActionDetails: json.RawMessage(`{"name":"dishes"}`),
			})
		}
		json.NewEncoder(w).Encode(entries)
	})
	e := newEnv(t, mux)

	if err := e.logs.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := len(e.logs.Entries()); got != maxLogEntries {
		t.Errorf("len(entries) = %d, want %d", got, maxLogEntries)
	}
}

func TestFetchReplacesLocalEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/", backendMux())
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.LogEntry{
			{
				ID: 1, ChoreID: ptr(int64(2)), ActionType: model.ActionMarkedDone,
				DoneAt:        "2026-03-01T10:00:00",
				ActionDetails: json.RawMessage(`{"name":"dishes"}`),
			},
		})
	})
	e := newEnv(t, mux)

	e.logs.AddLocalEntry("dishes marked as done", model.ActionMarkedDone)
	if err := e.logs.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	for _, entry := range e.logs.Entries() {
		if entry.Local {
			t.Errorf("local entry should be superseded by fetch: %+v", entry)
		}
	}
}

func TestLocalEntriesPrependAndPersist(t *testing.T) {
	e := newEnv(t, backendMux())

	e.logs.AddLocalEntry("Created vacuum", model.ActionCreated)
	e.logs.AddLocalEntry("vacuum marked as done", model.ActionMarkedDone)

	entries := e.logs.Entries()
	if entries[0].Label != "vacuum marked as done" {
		t.Errorf("newest entry first, got %q", entries[0].Label)
	}

	// A fresh store on the same local storage restores the cached feed.
	restored := NewLogStore(nil, e.store, e.logs.logger)
	got := restored.Entries()
	if len(got) != len(entries) {
		t.Fatalf("restored %d entries, want %d", len(got), len(entries))
	}
	if got[0].Label != "vacuum marked as done" {
		t.Errorf("restored[0].Label = %q, want %q", got[0].Label, "vacuum marked as done")
	}
}
