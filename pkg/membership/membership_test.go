package membership

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

func newTestStore(t *testing.T) store.StoreInterface {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLeader_SelfWhenNoPeersLive(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterAgent("agent-5"); err != nil {
		t.Fatal(err)
	}
	tbl := New(s, "agent-5", time.Second)

	leader, err := tbl.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if leader != "agent-5" {
		t.Fatalf("expected self-election, got %s", leader)
	}
}

func TestLeader_LowestLiveIDWins(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"agent-3", "agent-1", "agent-2"} {
		if _, err := s.RegisterAgent(id); err != nil {
			t.Fatal(err)
		}
	}
	tbl := New(s, "agent-3", time.Second)

	leader, err := tbl.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if leader != "agent-1" {
		t.Fatalf("expected agent-1 to win lowest-id election, got %s", leader)
	}
	isLeader, err := tbl.IsLeader()
	if err != nil {
		t.Fatal(err)
	}
	if isLeader {
		t.Fatal("expected agent-3 to not be leader")
	}
}

func TestLeader_ExcludesStalePeers(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterAgent("agent-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RegisterAgent("agent-9"); err != nil {
		t.Fatal(err)
	}
	tbl := New(s, "agent-9", 0)

	leader, err := tbl.Leader()
	if err != nil {
		t.Fatal(err)
	}
	if leader != "agent-9" {
		t.Fatalf("expected agent-9 to self-elect once agent-1 is stale, got %s", leader)
	}
}

func TestObserve_UpdatesHeartbeatFields(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.RegisterAgent("agent-1"); err != nil {
		t.Fatal(err)
	}
	tbl := New(s, "agent-1", time.Second)

	if err := tbl.Observe("agent-1", 3, model.StatusDegraded, "job-7", 42); err != nil {
		t.Fatal(err)
	}
	a, err := s.GetAgent("agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if a.ConfigVersion != 3 || a.Status != model.StatusDegraded || a.Job != "job-7" || a.Fuel != 42 {
		t.Fatalf("heartbeat fields not persisted: %+v", a)
	}
}

func TestConfigDrift(t *testing.T) {
	if ConfigDrift(5, 5) {
		t.Fatal("expected no drift when versions are equal")
	}
	if ConfigDrift(5, 4) {
		t.Fatal("expected no drift when observed is lower")
	}
	if !ConfigDrift(5, 6) {
		t.Fatal("expected drift when observed exceeds local")
	}
}
