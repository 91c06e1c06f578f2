// ore.go persists the deduped, monotone ore registry described in
// spec.md §4.8: entries transition queued -> mined only, keyed by
// (x, y, z, block).
package store

import (
	"database/sql"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// UpsertOreObservation inserts a new observation if (x,y,z,block) is
// unseen; it never downgrades an existing 'mined' row back to 'queued'
// (spec.md §3's ore monotonicity invariant), since the insert is a no-op
// on conflict. Returns true if a new row was inserted.
func (s *Store) UpsertOreObservation(x, y, z int, block string) (inserted bool, err error) {
	err = retryOnContention(func() error {
		res, execErr := s.db.Exec(
			`INSERT INTO ore_observations (x, y, z, block, status) VALUES (?, ?, ?, ?, 'queued')
			 ON CONFLICT(x, y, z, block) DO NOTHING`,
			x, y, z, block,
		)
		if execErr != nil {
			return execErr
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return raErr
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// MarkOreMined promotes a single observation to mined. A no-op if the
// observation doesn't exist or is already mined — promotion never
// reverses (spec.md §3 invariant 6).
func (s *Store) MarkOreMined(x, y, z int, block string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`UPDATE ore_observations SET status = 'mined' WHERE x = ? AND y = ? AND z = ? AND block = ?`,
			x, y, z, block,
		)
		return err
	})
}

// MarkPositionsMined promotes every observation whose position appears in
// positions to mined, regardless of block, resolving the "a peer already
// mined this vein" case from spec.md §4.8 in one pass.
func (s *Store) MarkPositionsMined(positions [][3]int) error {
	return retryOnContention(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck
		for _, p := range positions {
			if _, err := tx.Exec(
				`UPDATE ore_observations SET status = 'mined' WHERE x = ? AND y = ? AND z = ?`,
				p[0], p[1], p[2],
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListOreByStatus returns every observation with the given status.
func (s *Store) ListOreByStatus(status model.OreStatus) ([]model.OreObservation, error) {
	rows, err := s.db.Query(
		`SELECT x, y, z, block, status FROM ore_observations WHERE status = ? ORDER BY x, y, z`, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOreRows(rows)
}

func scanOreRows(rows *sql.Rows) ([]model.OreObservation, error) {
	var out []model.OreObservation
	for rows.Next() {
		var r model.OreObservation
		var statusStr string
		if err := rows.Scan(&r.X, &r.Y, &r.Z, &r.Block, &statusStr); err != nil {
			return nil, err
		}
		r.Status = model.OreStatus(statusStr)
		out = append(out, r)
	}
	return out, rows.Err()
}
