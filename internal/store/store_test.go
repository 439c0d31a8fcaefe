package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='links'",
	).Scan(&name)
	if err != nil {
		t.Errorf("links table not found after idempotent opens: %v", err)
	}
}

func TestOpen_KeepsRowsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.Touch(ctx, testSession, "Steve"); err != nil {
		t.Fatalf("Touch() failed: %v", err)
	}
	if _, err := s1.TryLink(ctx, testSession, 555); err != nil {
		t.Fatalf("TryLink() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	account, linked, err := s2.Lookup(ctx, testSession)
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if !linked || account != 555 {
		t.Errorf("Lookup() = (%d, %v), want (555, true)", account, linked)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClosedStore_ReportsUnavailable(t *testing.T) {
	s := createTestStore(t)
	s.Close()

	ctx := context.Background()
	if _, _, err := s.Lookup(ctx, testSession); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Lookup() error = %v, want ErrUnavailable", err)
	}
	if err := s.Touch(ctx, testSession, "Steve"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Touch() error = %v, want ErrUnavailable", err)
	}
	if _, err := s.TryLink(ctx, testSession, 555); !errors.Is(err, ErrUnavailable) {
		t.Errorf("TryLink() error = %v, want ErrUnavailable", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping() error = %v, want ErrUnavailable", err)
	}
}

func TestMigrateToV1_ImportsLegacyUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	_, err = legacy.Exec(`
		CREATE TABLE users (
			minecraft_uuid VARCHAR(36) PRIMARY KEY,
			discord_id BIGINT UNIQUE,
			current_username VARCHAR(255) NOT NULL,
			registration_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO users VALUES ('11111111-1111-1111-1111-111111111111', 42, 'Alex', '2024-03-01 12:00:00');
		INSERT INTO users VALUES ('22222222-2222-2222-2222-222222222222', 0, 'Sam', '2024-03-02 12:00:00');
		INSERT INTO users VALUES ('not-a-uuid', 7, 'Bad', '2024-03-02 12:00:00');
	`)
	if err != nil {
		t.Fatalf("seed legacy db: %v", err)
	}
	legacy.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	rec, err := s.Record(ctx, "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if !rec.Linked || rec.AccountID != 42 || rec.DisplayName != "Alex" {
		t.Errorf("imported record = %+v", rec)
	}

	_, linked, err := s.Lookup(ctx, "22222222-2222-2222-2222-222222222222")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if linked {
		t.Error("legacy row with discord_id 0 should read as unlinked")
	}

	if _, err := s.Record(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("malformed legacy uuid should be skipped, got %v", err)
	}
}
