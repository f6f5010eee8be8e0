package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent_queries.json")
	c := NewRecentQueries(path)

	now := time.Now()
	if _, err := c.Record("chemistry simulations", now); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := c.Record("Plant Growth", now.Add(time.Second)); err != nil {
		t.Fatalf("record: %v", err)
	}
	list := c.Load()
	if len(list) != 2 {
		t.Fatalf("expected 2 stored queries, got %d", len(list))
	}
	if list[0].Topic != "Plant Growth" {
		t.Fatalf("most recent not first: %q", list[0].Topic)
	}
}

func TestRecordDedupAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent_queries.json")
	now := time.Now()
	if _, err := NewRecentQueries(path).Record("Magnets", now); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Fresh handle, same file: reinsertion must move, not duplicate.
	list, err := NewRecentQueries(path).Record("magnets", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("duplicate topic stored: %d entries", len(list))
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	c := NewRecentQueries(filepath.Join(dir, "missing.json"))
	if got := c.Load(); len(got) != 0 {
		t.Fatalf("missing file should load empty, got %d", len(got))
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := NewRecentQueries(bad).Load(); len(got) != 0 {
		t.Fatalf("corrupt file should load empty, got %d", len(got))
	}
}
