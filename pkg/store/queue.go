// queue.go persists the per-agent job queue as an append-only ledger:
// every state transition (enqueue, claim, complete, fail) appends a row;
// the live queue is reconstructed by taking the latest row per job_id, as
// required by spec.md §4.6.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// AppendJobRecord appends one ledger row recording a job's current state.
func (s *Store) AppendJobRecord(j model.Job) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO job_ledger (job_id, type, payload, attempts, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			j.ID, int(j.Type), j.Payload, j.Attempts, string(j.Status),
			j.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// LoadJobLedger reconstructs the latest status per job_id by taking the
// row with the highest ledger seq for each job_id, per spec.md §4.6
// ("replay reconstructs latest status per id").
func (s *Store) LoadJobLedger() ([]model.Job, error) {
	rows, err := s.db.Query(`
		SELECT l.job_id, l.type, l.payload, l.attempts, l.status, l.created_at
		FROM job_ledger l
		JOIN (SELECT job_id, MAX(seq) AS max_seq FROM job_ledger GROUP BY job_id) latest
		  ON l.job_id = latest.job_id AND l.seq = latest.max_seq
		ORDER BY l.type ASC, l.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]model.Job, error) {
	var out []model.Job
	for rows.Next() {
		var j model.Job
		var typ int
		var statusStr, createdStr string
		if err := rows.Scan(&j.ID, &typ, &j.Payload, &j.Attempts, &statusStr, &createdStr); err != nil {
			return nil, err
		}
		j.Type = model.JobType(typ)
		j.Status = model.JobStatus(statusStr)
		ts, err := time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for job %s: %w", j.ID, err)
		}
		j.CreatedAt = ts
		out = append(out, j)
	}
	return out, rows.Err()
}
