package store

import (
	"path/filepath"
	"testing"
	"time"
)

const (
	testSession  = "6f1c2a34-8b5d-4e7f-9a0b-1c2d3e4f5a6b"
	otherSession = "0d9e8f7a-6b5c-4d3e-2f1a-0b9c8d7e6f5a"
)

// createTestStore creates a new file-backed store for testing with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(func() time.Time {
		return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
