// tunnel.go persists the shared tunnel plan and its mutex transitions.
// Claim/release follow the teacher's AcquireLock pattern (pkg/store's
// check-and-grant inside one transaction prevents TOCTOU races when two
// agents request the same tunnel concurrently), adapted from a
// Lamport-total-order file lock to the leader-owned idle->claimed
// transition described in spec.md §4.7.
package store

import (
	"database/sql"
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// InitTunnelPlan inserts the tiled tunnel plan if the table is empty.
// Re-running InitTunnelPlan on an already-populated plan is a no-op, so
// a restarting leader never re-tiles a plan agents are already working.
func (s *Store) InitTunnelPlan(tunnels []model.Tunnel) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tunnels`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return tx.Commit()
		}
		for _, t := range tunnels {
			if _, err := tx.Exec(
				`INSERT INTO tunnels (id, origin_x, origin_y, origin_z, length, progress, state, claimed_by, config_version)
				 VALUES (?, ?, ?, ?, ?, 0, 'idle', '', ?)`,
				t.ID, t.OriginX, t.OriginY, t.OriginZ, t.Length, t.ConfigVer,
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListTunnels returns the full tunnel plan ordered by ID.
func (s *Store) ListTunnels() ([]model.Tunnel, error) {
	rows, err := s.db.Query(
		`SELECT id, origin_x, origin_y, origin_z, length, progress, state, claimed_by, config_version
		 FROM tunnels ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTunnels(rows)
}

// GetTunnel returns a single tunnel by ID.
func (s *Store) GetTunnel(id string) (*model.Tunnel, error) {
	row := s.db.QueryRow(
		`SELECT id, origin_x, origin_y, origin_z, length, progress, state, claimed_by, config_version
		 FROM tunnels WHERE id = ?`, id,
	)
	var t model.Tunnel
	var stateStr string
	if err := row.Scan(&t.ID, &t.OriginX, &t.OriginY, &t.OriginZ, &t.Length, &t.Progress, &stateStr, &t.ClaimedBy, &t.ConfigVer); err != nil {
		return nil, err
	}
	t.State = model.TunnelState(stateStr)
	return &t, nil
}

// ClaimFirstIdleTunnel transitions the first idle tunnel (by ID order) to
// claimed and assigns it to agentID, all inside one transaction so two
// concurrent leader requests can never grant the same tunnel twice. This
// is the leader-owned step of the mutex protocol in spec.md §4.7.
func (s *Store) ClaimFirstIdleTunnel(agentID string) (*model.Tunnel, error) {
	var claimed *model.Tunnel
	err := retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		row := tx.QueryRow(
			`SELECT id, origin_x, origin_y, origin_z, length, progress, state, claimed_by, config_version
			 FROM tunnels WHERE state = 'idle' ORDER BY id LIMIT 1`,
		)
		var t model.Tunnel
		var stateStr string
		if err := row.Scan(&t.ID, &t.OriginX, &t.OriginY, &t.OriginZ, &t.Length, &t.Progress, &stateStr, &t.ClaimedBy, &t.ConfigVer); err != nil {
			if err == sql.ErrNoRows {
				claimed = nil
				return tx.Commit()
			}
			return err
		}

		if _, err := tx.Exec(
			`UPDATE tunnels SET state = 'claimed', claimed_by = ? WHERE id = ? AND state = 'idle'`,
			agentID, t.ID,
		); err != nil {
			return err
		}
		t.State = model.TunnelClaimed
		t.ClaimedBy = agentID
		claimed = &t
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("claim first idle tunnel: %w", err)
	}
	return claimed, nil
}

// UpdateTunnelProgress persists in-flight progress while an agent is
// actively digging a tunnel.
func (s *Store) UpdateTunnelProgress(id string, progress int, state model.TunnelState) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`UPDATE tunnels SET progress = ?, state = ? WHERE id = ?`, progress, string(state), id)
		return err
	})
}

// ReleaseTunnel clears the claim on a tunnel, returning it to idle (if
// abandoned) or leaving it at the given terminal state (done/failed back
// to idle). Used both for normal job_release and for leader reclamation
// of a dead peer's claim.
func (s *Store) ReleaseTunnel(id string, finalState model.TunnelState) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`UPDATE tunnels SET state = ?, claimed_by = '' WHERE id = ?`,
			string(finalState), id,
		)
		return err
	})
}

// ReconcileTunnel implements the duplicate-claim reconciliation rule from
// spec.md §4.9/§9: keep the tunnel state with greater progress; on equal
// progress, keep the lower agent ID. It only overwrites the stored row
// when the incoming claim actually wins.
func (s *Store) ReconcileTunnel(id, candidateAgent string, candidateProgress int) (kept bool, err error) {
	err = retryOnContention(func() error {
		tx, txErr := s.db.Begin()
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback() //nolint:errcheck

		var curProgress int
		var curAgent string
		if scanErr := tx.QueryRow(`SELECT progress, claimed_by FROM tunnels WHERE id = ?`, id).
			Scan(&curProgress, &curAgent); scanErr != nil {
			return scanErr
		}

		winner := candidateAgent
		winnerProgress := candidateProgress
		switch {
		case candidateProgress > curProgress:
			kept = true
		case candidateProgress < curProgress:
			kept = false
			winner, winnerProgress = curAgent, curProgress
		default: // equal progress: tie-break by lower agent id
			if candidateAgent < curAgent {
				kept = true
			} else {
				kept = false
				winner, winnerProgress = curAgent, curProgress
			}
		}

		if _, updErr := tx.Exec(
			`UPDATE tunnels SET claimed_by = ?, progress = ?, state = 'active' WHERE id = ?`,
			winner, winnerProgress, id,
		); updErr != nil {
			return updErr
		}
		return tx.Commit()
	})
	return kept, err
}

func scanTunnels(rows *sql.Rows) ([]model.Tunnel, error) {
	var out []model.Tunnel
	for rows.Next() {
		var t model.Tunnel
		var stateStr string
		if err := rows.Scan(&t.ID, &t.OriginX, &t.OriginY, &t.OriginZ, &t.Length, &t.Progress, &stateStr, &t.ClaimedBy, &t.ConfigVer); err != nil {
			return nil, err
		}
		t.State = model.TunnelState(stateStr)
		out = append(out, t)
	}
	return out, rows.Err()
}
