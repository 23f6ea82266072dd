package localstore

import (
	"io"
	"log/slog"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("missing key should report ok=false")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("token", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get("token")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got != "abc" {
		t.Errorf("get = (%q, %v), want (%q, true)", got, ok, "abc")
	}

	// Overwrite
	if err := s.Set("token", "def"); err != nil {
		t.Fatalf("set again: %v", err)
	}
	got, _, _ = s.Get("token")
	if got != "def" {
		t.Errorf("after overwrite = %q, want %q", got, "def")
	}
}

func TestDeleteAbsentKey(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete("never-existed"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestGetJSONMalformedReplacedWithDefault(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set("settings", "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out map[string]any
	ok, err := s.GetJSON("settings", &out)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	if ok {
		t.Error("malformed value should report ok=false")
	}

	// The bad value must be gone so the next read starts clean.
	if _, present, _ := s.Get("settings"); present {
		t.Error("malformed value should have been removed")
	}
}

func TestSetJSONRoundTrip(t *testing.T) {
	s := openTestStore(t)

	type settings struct {
		Enabled bool     `json:"enabled"`
		Times   []string `json:"times"`
	}
	in := settings{Enabled: true, Times: []string{"09:00", "18:30"}}
	if err := s.SetJSON("settings", in); err != nil {
		t.Fatalf("set json: %v", err)
	}

	var out settings
	ok, err := s.GetJSON("settings", &out)
	if err != nil || !ok {
		t.Fatalf("get json = (%v, %v)", ok, err)
	}
	if !out.Enabled || len(out.Times) != 2 || out.Times[1] != "18:30" {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestSchemaMigrationClearsStaleKeys(t *testing.T) {
	s := openTestStore(t)

	// Simulate an old layout: stale key present, schema version behind.
	if err := s.Set("choremane_current_version", "v1"); err != nil {
		t.Fatalf("seed stale key: %v", err)
	}
	if err := s.Set(KeySchemaVersion, "1"); err != nil {
		t.Fatalf("seed schema version: %v", err)
	}

	if err := s.migrateSchema(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, ok, _ := s.Get("choremane_current_version"); ok {
		t.Error("stale key should be cleared by migration")
	}
	v, _, _ := s.Get(KeySchemaVersion)
	if v != SchemaVersion {
		t.Errorf("schema version = %q, want %q", v, SchemaVersion)
	}
}
