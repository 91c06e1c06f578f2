package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

func newTestQueue(t *testing.T, maxFails int) (*Queue, store.StoreInterface) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	q, err := Load(s, maxFails)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return q, s
}

func TestPop_HighestPriorityFirst(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	now := time.Now()

	q.Enqueue(model.Job{ID: "tunnel", Type: model.JobTunnelMine, CreatedAt: now})
	q.Enqueue(model.Job{ID: "refuel", Type: model.JobRefuel, CreatedAt: now})
	q.Enqueue(model.Job{ID: "ore", Type: model.JobOreMine, CreatedAt: now})

	j, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if j.Type != model.JobRefuel {
		t.Fatalf("expected refuel popped first, got %v", j.Type)
	}
}

func TestPop_TieBreaksOnCreatedAt(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	early := time.Now()
	late := early.Add(time.Minute)

	q.Enqueue(model.Job{ID: "later", Type: model.JobOreMine, CreatedAt: late})
	q.Enqueue(model.Job{ID: "earlier", Type: model.JobOreMine, CreatedAt: early})

	j, err := q.Pop()
	if err != nil {
		t.Fatal(err)
	}
	if j.ID != "earlier" {
		t.Fatalf("expected earlier job popped first, got %s", j.ID)
	}
}

func TestPop_RefusesSecondActiveJob(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(model.Job{ID: "a", Type: model.JobOreMine, CreatedAt: time.Now()})
	q.Enqueue(model.Job{ID: "b", Type: model.JobOreMine, CreatedAt: time.Now()})

	if _, err := q.Pop(); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Pop(); err == nil {
		t.Fatal("expected error popping while a job is already active")
	}
}

func TestEnqueue_SystemJobsAreIdempotent(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	now := time.Now()

	q.Enqueue(model.Job{ID: "r1", Type: model.JobRecall, CreatedAt: now})
	q.Enqueue(model.Job{ID: "r2", Type: model.JobRecall, CreatedAt: now})

	if q.Len() != 1 {
		t.Fatalf("expected at most one live recall job, got %d pending", q.Len())
	}
}

func TestEnqueue_SystemJobNoOpWhileActive(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	now := time.Now()
	q.Enqueue(model.Job{ID: "r1", Type: model.JobRecall, CreatedAt: now})
	q.Pop()

	if err := q.Enqueue(model.Job{ID: "r2", Type: model.JobRecall, CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected no new recall job queued while one is active, got %d pending", q.Len())
	}
}

func TestComplete_ClearsActiveJob(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(model.Job{ID: "a", Type: model.JobOreMine, CreatedAt: time.Now()})
	q.Pop()

	if err := q.Complete(); err != nil {
		t.Fatal(err)
	}
	if q.Active() != nil {
		t.Fatal("expected no active job after Complete")
	}
}

func TestFail_RequeuesUntilMaxFailures(t *testing.T) {
	q, _ := newTestQueue(t, 2)
	q.Enqueue(model.Job{ID: "a", Type: model.JobOreMine, CreatedAt: time.Now()})

	for i := 0; i < 2; i++ {
		if _, err := q.Pop(); err != nil {
			t.Fatal(err)
		}
		if err := q.Fail(true); err != nil {
			t.Fatal(err)
		}
	}
	// Third failure exceeds maxFails=2 and should drop the job.
	if _, err := q.Pop(); err != nil {
		t.Fatal(err)
	}
	if err := q.Fail(true); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected job dropped after exceeding max failures, got %d pending", q.Len())
	}
}

func TestLoad_ReconstructsFromLedger(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.AppendJobRecord(model.Job{ID: "a", Type: model.JobOreMine, Status: model.JobQueued, CreatedAt: time.Now()})
	s.AppendJobRecord(model.Job{ID: "b", Type: model.JobTunnelMine, Status: model.JobClaimed, CreatedAt: time.Now()})

	q, err := Load(s, 3)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 pending job reconstructed, got %d", q.Len())
	}
	if q.Active() == nil || q.Active().ID != "b" {
		t.Fatalf("expected active job 'b' reconstructed, got %+v", q.Active())
	}
}
