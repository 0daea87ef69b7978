package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestSetGetRoundtrip(t *testing.T) {
	s := testStore(t)

	s.Set("session", "cookies", "a=1; b=2", Forever)

	got, ok := s.GetString("session", "cookies")
	if !ok {
		t.Fatal("expected cookies to be cached")
	}
	if got != "a=1; b=2" {
		t.Fatalf("got %q", got)
	}
}

func TestForeverTTLNeverExpires(t *testing.T) {
	s := testStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Set("session", "header", map[string]string{"x-api": "k"}, Forever)

	// Ten years later the entry must still be retrievable.
	s.now = func() time.Time { return base.Add(10 * 365 * 24 * time.Hour) }

	var v map[string]string
	if !s.Get("session", "header", &v) {
		t.Fatal("forever entry expired")
	}
	if v["x-api"] != "k" {
		t.Fatalf("got %v", v)
	}
}

func TestPositiveTTLExpiresLazily(t *testing.T) {
	s := testStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Set("session", "token", "t", time.Minute)

	s.now = func() time.Time { return base.Add(59 * time.Second) }
	if !s.Has("session", "token") {
		t.Fatal("entry expired too early")
	}

	s.now = func() time.Time { return base.Add(61 * time.Second) }
	if s.Has("session", "token") {
		t.Fatal("entry should have expired")
	}

	// Expired entries are removed on access, not just hidden.
	s.now = func() time.Time { return base }
	if s.Has("session", "token") {
		t.Fatal("expired entry was not removed")
	}
}

func TestLastWriterWins(t *testing.T) {
	s := testStore(t)

	s.Set("session", "cookies", "old", Forever)
	s.Set("session", "cookies", "new", Forever)

	got, _ := s.GetString("session", "cookies")
	if got != "new" {
		t.Fatalf("got %q, want %q", got, "new")
	}
}

func TestPersistAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	s.Set("session", "cookies", "persisted", Forever)
	s.Set("session", "gone", "x", time.Nanosecond)

	if err := s.Persist("session"); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "session.json")); err != nil {
		t.Fatalf("namespace file missing: %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	fresh := New(dir)
	if err := fresh.Load("session"); err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := fresh.GetString("session", "cookies")
	if !ok || got != "persisted" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	if fresh.Has("session", "gone") {
		t.Fatal("expired entry survived reload")
	}
}

func TestLoadMissingFileIsNonFatal(t *testing.T) {
	s := testStore(t)
	if err := s.Load("nothere"); err == nil {
		t.Fatal("expected error for missing file")
	}
	// Namespace must still be usable after a failed load.
	s.Set("nothere", "k", "v", Forever)
	if _, ok := s.GetString("nothere", "k"); !ok {
		t.Fatal("namespace unusable after failed load")
	}
}

func TestPrune(t *testing.T) {
	s := testStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Set("ns", "keep", "v", Forever)
	s.Set("ns", "drop", "v", time.Second)

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	s.Prune("ns")

	s.now = func() time.Time { return base }
	if !s.Has("ns", "keep") {
		t.Fatal("forever entry pruned")
	}
	if s.Has("ns", "drop") {
		t.Fatal("expired entry not pruned")
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := testStore(t)
	s.Set("ns", "a", 1, Forever)
	s.Set("ns", "b", 2, Forever)

	s.Delete("ns", "a")
	if s.Has("ns", "a") {
		t.Fatal("delete failed")
	}

	s.Clear("ns")
	if s.Has("ns", "b") {
		t.Fatal("clear failed")
	}
}
