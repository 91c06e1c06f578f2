// bus.go persists the quarry's broadcast message bus: WAL-mode SQLite
// plays the role of the network datagram bus required by spec.md §6,
// with per-sender monotonic Seq giving the sender-FIFO ordering guarantee
// from spec.md §5.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// PublishMessage assigns the sender's next monotonic Seq, inserts the
// message, and returns its row ID. The whole operation runs in a
// transaction so two concurrent publishes from the same sender can never
// observe the same Seq.
func (s *Store) PublishMessage(quarryID, sender string, kind model.BusMessageKind, target, body string) (*model.BusMessage, error) {
	now := time.Now().UTC()
	var msg model.BusMessage
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		var seq int64
		if err := tx.QueryRow(`SELECT seq FROM agents WHERE id = ?`, sender).Scan(&seq); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("publish: sender %q not registered", sender)
			}
			return err
		}
		seq++
		if _, err := tx.Exec(`UPDATE agents SET seq = ? WHERE id = ?`, seq, sender); err != nil {
			return err
		}

		res, err := tx.Exec(
			`INSERT INTO bus_messages (quarry_id, sender, seq, kind, target, body, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			quarryID, sender, seq, string(kind), target, body, now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit publish: %w", err)
		}
		msg = model.BusMessage{
			ID: id, QuarryID: quarryID, Sender: sender, Seq: seq,
			Kind: kind, Target: target, Body: body, Timestamp: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessagesSince returns every message (broadcast or directed) with row
// ID > sinceID, ordered by ID — the total delivery order agents poll
// against. This is the "receive" side of the bus.
func (s *Store) ListMessagesSince(quarryID string, sinceID int64, limit int) ([]model.BusMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, quarry_id, sender, seq, kind, COALESCE(target,''), COALESCE(body,''), created_at
		 FROM bus_messages WHERE quarry_id = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		quarryID, sinceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessagesForAgent returns messages directed at agentID (Target ==
// agentID) or broadcast (Target == "") since sinceID.
func (s *Store) ListMessagesForAgent(quarryID, agentID string, sinceID int64, limit int) ([]model.BusMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, quarry_id, sender, seq, kind, COALESCE(target,''), COALESCE(body,''), created_at
		 FROM bus_messages
		 WHERE quarry_id = ? AND id > ? AND (target = ? OR target = '' OR target IS NULL)
		 ORDER BY id ASC LIMIT ?`,
		quarryID, sinceID, agentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListMessagesByKind returns messages of a given kind since sinceID,
// regardless of target — used for the append-only operator log
// (kind='log') required by spec.md §6.
func (s *Store) ListMessagesByKind(quarryID string, kind model.BusMessageKind, sinceID int64, limit int) ([]model.BusMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, quarry_id, sender, seq, kind, COALESCE(target,''), COALESCE(body,''), created_at
		 FROM bus_messages WHERE quarry_id = ? AND kind = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		quarryID, string(kind), sinceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetCursor returns the stored receive cursor for an agent (0 if unset).
func (s *Store) GetCursor(agentID string) int64 {
	var id int64
	if err := s.db.QueryRow(`SELECT since_id FROM cursors WHERE agent_id = ?`, agentID).Scan(&id); err != nil {
		return 0
	}
	return id
}

// SetCursor updates the receive cursor for an agent.
func (s *Store) SetCursor(agentID string, sinceID int64) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO cursors (agent_id, since_id) VALUES (?, ?)
			 ON CONFLICT(agent_id) DO UPDATE SET since_id = excluded.since_id`,
			agentID, sinceID,
		)
		return err
	})
}

// MaxMessageID returns the highest bus message row ID, or 0 if empty.
func (s *Store) MaxMessageID() int64 {
	var id int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM bus_messages`).Scan(&id); err != nil {
		return 0
	}
	return id
}

func scanMessages(rows *sql.Rows) ([]model.BusMessage, error) {
	var msgs []model.BusMessage
	for rows.Next() {
		var m model.BusMessage
		var kindStr, createdStr string
		if err := rows.Scan(&m.ID, &m.QuarryID, &m.Sender, &m.Seq, &kindStr, &m.Target, &m.Body, &createdStr); err != nil {
			return nil, err
		}
		m.Kind = model.BusMessageKind(kindStr)
		ts, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for message %d: %w", m.ID, err)
		}
		m.Timestamp = ts
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
