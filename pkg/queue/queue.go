// Package queue implements the per-agent persistent priority job queue
// from spec.md §4.6: an append-only ledger (via pkg/store) backs an
// in-memory min-heap keyed by (priority, createdAt), rebuilt from the
// ledger on Load.
package queue

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
	"github.com/google/uuid"
)

// jobHeap orders jobs by (priority, createdAt), ascending — lower
// priority value and earlier creation sort first.
type jobHeap []model.Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority() != h[j].Priority() {
		return h[i].Priority() < h[j].Priority()
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}
func (h jobHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(model.Job)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is one agent's materialized job queue.
type Queue struct {
	store    store.StoreInterface
	pending  jobHeap
	active   *model.Job
	maxFails int
}

// Load reconstructs the queue from the ledger: the latest-status record
// per job id is partitioned into the active job (status=claimed, at
// most one per spec.md §4.6) and the pending heap (status=queued).
// Completed and failed jobs are dropped from the live view.
func Load(s store.StoreInterface, maxJobFailures int) (*Queue, error) {
	records, err := s.LoadJobLedger()
	if err != nil {
		return nil, fmt.Errorf("queue load: %w", err)
	}
	q := &Queue{store: s, maxFails: maxJobFailures}
	for _, j := range records {
		switch j.Status {
		case model.JobQueued:
			q.pending = append(q.pending, j)
		case model.JobClaimed:
			jCopy := j
			q.active = &jCopy
		}
	}
	heap.Init(&q.pending)
	return q, nil
}

// Active returns the currently claimed job, if any.
func (q *Queue) Active() *model.Job { return q.active }

// Len reports how many jobs are pending (not counting the active job).
func (q *Queue) Len() int { return q.pending.Len() }

// Enqueue appends a new queued job record. For system job types (recall,
// refuel) this is idempotent: if a live instance already exists (pending
// or active), the call is a no-op, per spec.md §4.6.
func (q *Queue) Enqueue(j model.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = model.JobQueued
	}
	if isSystemJobType(j.Type) && q.hasLive(j.Type) {
		return nil
	}
	if err := q.store.AppendJobRecord(j); err != nil {
		return fmt.Errorf("queue enqueue %s: %w", j.ID, err)
	}
	heap.Push(&q.pending, j)
	return nil
}

func isSystemJobType(t model.JobType) bool {
	return t == model.JobRecall || t == model.JobRefuel
}

func (q *Queue) hasLive(t model.JobType) bool {
	if q.active != nil && q.active.Type == t {
		return true
	}
	for _, j := range q.pending {
		if j.Type == t {
			return true
		}
	}
	return false
}

// Pop claims the highest-priority pending job: it is removed from the
// heap, marked active, appended to the ledger as claimed, and fsynced.
// Returns nil, nil if the queue is empty, and an error if a job is
// already active.
func (q *Queue) Pop() (*model.Job, error) {
	if q.active != nil {
		return nil, fmt.Errorf("queue pop: job %s already active", q.active.ID)
	}
	if q.pending.Len() == 0 {
		return nil, nil
	}
	j := heap.Pop(&q.pending).(model.Job)
	j.Status = model.JobClaimed
	if err := q.store.AppendJobRecord(j); err != nil {
		return nil, fmt.Errorf("queue pop %s: %w", j.ID, err)
	}
	q.active = &j
	return q.active, nil
}

// Complete appends a terminal "completed" record for the active job and
// clears it, per spec.md §4.6's append-only completion rule.
func (q *Queue) Complete() error {
	if q.active == nil {
		return fmt.Errorf("queue complete: no active job")
	}
	j := *q.active
	j.Status = model.JobCompleted
	if err := q.store.AppendJobRecord(j); err != nil {
		return fmt.Errorf("queue complete %s: %w", j.ID, err)
	}
	q.active = nil
	return nil
}

// Fail records a failure for the active job. With requeue=true the job
// is reinserted at the tail (via a fresh CreatedAt) and Attempts is
// incremented; once Attempts exceeds maxJobFailures the job transitions
// to failed and is dropped from the live view regardless of requeue.
func (q *Queue) Fail(requeue bool) error {
	if q.active == nil {
		return fmt.Errorf("queue fail: no active job")
	}
	j := *q.active
	j.Attempts++
	q.active = nil

	if !requeue || j.Attempts > q.maxFails {
		j.Status = model.JobFailed
		return q.store.AppendJobRecord(j)
	}

	j.Status = model.JobQueued
	j.CreatedAt = time.Now()
	if err := q.store.AppendJobRecord(j); err != nil {
		return fmt.Errorf("queue fail requeue %s: %w", j.ID, err)
	}
	heap.Push(&q.pending, j)
	return nil
}

// PeekPriority reports the priority of the highest-priority pending
// job, without claiming it. Returns false if nothing is pending.
func (q *Queue) PeekPriority() (int, bool) {
	if q.pending.Len() == 0 {
		return 0, false
	}
	return q.pending[0].Priority(), true
}

// Yield returns the active job to the pending heap so a strictly
// higher-priority job can be claimed instead, per spec.md §4.6
// invariant #5 (active priority must never exceed every pending
// priority). Unlike Fail, this is not a failure: Attempts is untouched
// and CreatedAt is preserved, so the job keeps its place within its own
// priority band once it is popped again.
func (q *Queue) Yield() error {
	if q.active == nil {
		return fmt.Errorf("queue yield: no active job")
	}
	j := *q.active
	j.Status = model.JobQueued
	if err := q.store.AppendJobRecord(j); err != nil {
		return fmt.Errorf("queue yield %s: %w", j.ID, err)
	}
	q.active = nil
	heap.Push(&q.pending, j)
	return nil
}
