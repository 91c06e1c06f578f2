// journal.go persists pending journal entries for the ACID-verify
// protocol described in spec.md §4.1. Completed entries are deleted
// (the table only ever holds work that has not yet been verified), and a
// side table holds entries that fail to parse on resume so an operator
// can investigate (spec.md §7 JournalCorrupt).
package store

import (
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// BeginJournalEntry allocates a new pending entry and fsyncs it (SQLite's
// transaction commit is AutoMine's fsync boundary). Returns the new ID.
func (s *Store) BeginJournalEntry(kind, payload string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var id int64
	err := retryOnContention(func() error {
		res, err := s.db.Exec(
			`INSERT INTO journal_entries (kind, payload, started_at) VALUES (?, ?, ?)`,
			kind, payload, now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CompleteJournalEntry removes a pending entry once its effect is known
// to have succeeded.
func (s *Store) CompleteJournalEntry(id int64) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM journal_entries WHERE id = ?`, id)
		return err
	})
}

// ListPendingJournalEntries returns every entry still awaiting
// verification, in the order they were begun.
func (s *Store) ListPendingJournalEntries() ([]model.JournalEntry, error) {
	rows, err := s.db.Query(`SELECT id, kind, payload, started_at FROM journal_entries ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var startedStr string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &startedStr); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, startedStr)
		if err != nil {
			return nil, fmt.Errorf("parse started_at for journal entry %d: %w", e.ID, err)
		}
		e.StartedAt = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QuarantineJournalEntry moves an unparsable pending entry to the
// quarantine side table and removes it from the active journal, per
// spec.md §7's JournalCorrupt handling.
func (s *Store) QuarantineJournalEntry(e model.JournalEntry, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.Exec(
			`INSERT INTO journal_quarantine (original_id, kind, payload, reason, quarantined_at)
			 VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Kind, e.Payload, reason, now,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM journal_entries WHERE id = ?`, e.ID); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// CountPendingJournalEntries reports how many entries are still pending.
func (s *Store) CountPendingJournalEntries() int64 {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM journal_entries`).Scan(&n); err != nil {
		return 0
	}
	return n
}
