package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/unicode/norm"
)

// LinkOutcome is the business result of TryLink.
type LinkOutcome int

const (
	// LinkApplied means the session is now linked to the account.
	// Re-linking a session to the account it already holds is also Applied.
	LinkApplied LinkOutcome = iota + 1

	// LinkNoSuchSession means the session has never been seen.
	LinkNoSuchSession

	// LinkAlreadyLinkedDifferently means the session holds another account,
	// or the account is held by another session.
	LinkAlreadyLinkedDifferently

	// LinkCapacityReached means the store already holds its maximum number
	// of linked sessions.
	LinkCapacityReached
)

// String implements fmt.Stringer.
func (o LinkOutcome) String() string {
	switch o {
	case LinkApplied:
		return "applied"
	case LinkNoSuchSession:
		return "no_such_session"
	case LinkAlreadyLinkedDifferently:
		return "already_linked_differently"
	case LinkCapacityReached:
		return "capacity_reached"
	default:
		return fmt.Sprintf("LinkOutcome(%d)", int(o))
	}
}

// LinkRecord is one row of the links table.
type LinkRecord struct {
	SessionID   string
	AccountID   int64
	Linked      bool
	DisplayName string
	CreatedAt   time.Time
	LinkedAt    time.Time
}

// Lookup returns the account linked to a session.
// A missing row and an unset account both read as (0, false, nil).
func (s *Store) Lookup(ctx context.Context, sessionID string) (int64, bool, error) {
	var account sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT discord_id FROM links WHERE session_id = ?
	`, sessionID).Scan(&account)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("lookup", err)
	}
	if !account.Valid || account.Int64 == 0 {
		return 0, false, nil
	}
	return account.Int64, true, nil
}

// Touch records that a session has been seen, creating its row with no
// account on first sight and refreshing the display name afterwards.
func (s *Store) Touch(ctx context.Context, sessionID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (session_id, display_name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET display_name = excluded.display_name
	`, sessionID, norm.NFC.String(displayName), s.now().Unix())
	if err != nil {
		return unavailable("touch", err)
	}
	return nil
}

// TryLink binds a session to an account.
//
// The check and the update run in one transaction. A session that already
// holds a different account is rejected; it must be unlinked first. An
// account held by another session trips the UNIQUE constraint, which is
// reported as LinkAlreadyLinkedDifferently. With a cap set (WithMaxLinks) a
// new link is refused once that many sessions are linked; re-linking the
// same account is not a new link.
func (s *Store) TryLink(ctx context.Context, sessionID string, accountID int64) (LinkOutcome, error) {
	if accountID == 0 {
		return 0, ErrInvalidAccount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("link", err)
	}
	defer tx.Rollback()

	var current sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		SELECT discord_id FROM links WHERE session_id = ?
	`, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkNoSuchSession, nil
	}
	if err != nil {
		return 0, unavailable("link", err)
	}

	if current.Valid && current.Int64 != 0 {
		if current.Int64 == accountID {
			return LinkApplied, nil
		}
		return LinkAlreadyLinkedDifferently, nil
	}

	if s.maxLinks > 0 {
		var linked int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM links WHERE discord_id IS NOT NULL AND discord_id != 0
		`).Scan(&linked)
		if err != nil {
			return 0, unavailable("link", err)
		}
		if linked >= s.maxLinks {
			return LinkCapacityReached, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE links SET discord_id = ?, linked_at = ?
		WHERE session_id = ?
	`, accountID, s.now().Unix(), sessionID)
	if isUniqueViolation(err) {
		return LinkAlreadyLinkedDifferently, nil
	}
	if err != nil {
		return 0, unavailable("link", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return LinkAlreadyLinkedDifferently, nil
		}
		return 0, unavailable("link", err)
	}
	return LinkApplied, nil
}

// Unlink clears the account of a session.
// Returns false if the session had no linked account.
func (s *Store) Unlink(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE links SET discord_id = NULL, linked_at = NULL
		WHERE session_id = ? AND discord_id IS NOT NULL AND discord_id != 0
	`, sessionID)
	if err != nil {
		return false, unavailable("unlink", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("unlink", err)
	}
	return n > 0, nil
}

// Record returns the row for a session, or ErrNotFound.
func (s *Store) Record(ctx context.Context, sessionID string) (LinkRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, discord_id, display_name, created_at, linked_at
		FROM links WHERE session_id = ?
	`, sessionID)
	return scanRecord(row, "record")
}

// FindByAccount returns the session linked to an account, or ErrNotFound.
func (s *Store) FindByAccount(ctx context.Context, accountID int64) (LinkRecord, error) {
	if accountID == 0 {
		return LinkRecord{}, ErrInvalidAccount
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, discord_id, display_name, created_at, linked_at
		FROM links WHERE discord_id = ?
	`, accountID)
	return scanRecord(row, "find by account")
}

func scanRecord(row *sql.Row, op string) (LinkRecord, error) {
	var (
		rec      LinkRecord
		account  sql.NullInt64
		created  int64
		linkedAt sql.NullInt64
	)
	err := row.Scan(&rec.SessionID, &account, &rec.DisplayName, &created, &linkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkRecord{}, ErrNotFound
	}
	if err != nil {
		return LinkRecord{}, unavailable(op, err)
	}

	rec.CreatedAt = time.Unix(created, 0).UTC()
	if account.Valid && account.Int64 != 0 {
		rec.AccountID = account.Int64
		rec.Linked = true
	}
	if linkedAt.Valid {
		rec.LinkedAt = time.Unix(linkedAt.Int64, 0).UTC()
	}
	return rec, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
