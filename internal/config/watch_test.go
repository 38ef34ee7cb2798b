package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchSafeAppliesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	initial, _ := json.Marshal(Default())
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	applied := make(chan Safe, 1)
	w, err := WatchSafe(path, func(s Safe) { applied <- s }, func(error) {})
	if err != nil {
		t.Fatalf("WatchSafe: %v", err)
	}
	defer w.Stop()

	updated := Default()
	updated.MaxUsers = 7
	b, _ := json.Marshal(updated)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case s := <-applied:
		if s.MaxUsers != 7 {
			t.Fatalf("max_users = %d, want 7", s.MaxUsers)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchSafeReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	initial, _ := json.Marshal(Default())
	if err := os.WriteFile(path, initial, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	errs := make(chan error, 1)
	w, err := WatchSafe(path, func(Safe) {}, func(e error) { errs <- e })
	if err != nil {
		t.Fatalf("WatchSafe: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a non-nil parse error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}
