package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbaille/timeclock/internal/domain"
)

//go:embed schema.sql
var schema string

// Store handles database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession replaces the stored session
func (s *Store) SaveSession(sess domain.Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO session (id, user_id, display_name, email, role, token, saved_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		sess.User.ID, sess.User.DisplayName, sess.User.Email, sess.User.Role, sess.Token, sess.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session or domain.ErrNoSession
func (s *Store) LoadSession() (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRow(
		"SELECT user_id, display_name, email, role, token, saved_at FROM session WHERE id = 1",
	).Scan(&sess.User.ID, &sess.User.DisplayName, &sess.User.Email, &sess.User.Role, &sess.Token, &sess.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

// ClearSession removes the stored session
func (s *Store) ClearSession() error {
	if _, err := s.db.Exec("DELETE FROM session"); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// MarkSeen records fingerprint for the user and day. It reports true when
// the fingerprint was already present; check and insert are one statement.
func (s *Store) MarkSeen(userID int, day, fingerprint, payload string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO scan_ledger (id, user_id, day, fingerprint, payload, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), userID, day, fingerprint, payload, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return n == 0, nil
}

// Forget removes a ledger entry so the code can be used again that day
func (s *Store) Forget(userID int, day, fingerprint string) error {
	_, err := s.db.Exec(
		"DELETE FROM scan_ledger WHERE user_id = ? AND day = ? AND fingerprint = ?",
		userID, day, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("forget ledger entry: %w", err)
	}
	return nil
}

// LedgerEntries returns the codes a user used on day, oldest first
func (s *Store) LedgerEntries(userID int, day string) ([]domain.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, day, fingerprint, payload, seen_at
		 FROM scan_ledger WHERE user_id = ? AND day = ? ORDER BY seen_at, rowid`,
		userID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Day, &e.Fingerprint, &e.Payload, &e.SeenAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// PruneLedger deletes entries of days before the given day
func (s *Store) PruneLedger(before string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM scan_ledger WHERE day < ?", before)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return res.RowsAffected()
}
