package movement

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/pose"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// fakeActuator is an in-memory WorldActuator for testing Mover without a
// real turtle.
type fakeActuator struct {
	fuel          int
	blockedFront  int // number of MoveForward calls that report blocked
	frontDetected bool
	digCalls      int
	attackCalls   int
}

func (f *fakeActuator) MoveForward() (bool, error) {
	if f.blockedFront > 0 {
		f.blockedFront--
		return false, nil
	}
	return true, nil
}
func (f *fakeActuator) MoveBack() (bool, error) { return true, nil }
func (f *fakeActuator) MoveUp() (bool, error)   { return true, nil }
func (f *fakeActuator) MoveDown() (bool, error) { return true, nil }
func (f *fakeActuator) TurnLeft() error         { return nil }
func (f *fakeActuator) TurnRight() error        { return nil }
func (f *fakeActuator) Detect(face Face) bool   { return f.frontDetected }
func (f *fakeActuator) Dig(face Face) (bool, error) {
	f.digCalls++
	f.frontDetected = false
	return true, nil
}
func (f *fakeActuator) Attack(face Face) (bool, error) {
	f.attackCalls++
	return true, nil
}
func (f *fakeActuator) Fuel() int { return f.fuel }

func newTestMover(t *testing.T, actuator WorldActuator, bbox model.BoundingBox) (*Mover, *pose.Tracker) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	j := journal.New(s)
	tr := pose.New(bbox)
	tr.SetCalibrated(model.Pose{})
	m := New(actuator, tr, j, 10, 3)
	m.RegisterVerifiers()
	return m, tr
}

func TestMover_ForwardUpdatesPose(t *testing.T) {
	a := &fakeActuator{fuel: 100}
	m, tr := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	if err := m.Forward(); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if tr.Pose.Z != 1 {
		t.Fatalf("expected z=1 after forward facing north, got %+v", tr.Pose)
	}
}

func TestMover_OutOfBoundsRejected(t *testing.T) {
	a := &fakeActuator{fuel: 100}
	m, tr := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 0})
	tr.Pose.Dir = model.DirNorth

	err := m.Forward()
	if !errors.Is(err, errs.ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestMover_FuelExhausted(t *testing.T) {
	a := &fakeActuator{fuel: 0}
	m, _ := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	err := m.Forward()
	if !errors.Is(err, errs.ErrFuelExhausted) {
		t.Fatalf("expected ErrFuelExhausted, got %v", err)
	}
}

func TestMover_ClearsObstructionThenMoves(t *testing.T) {
	a := &fakeActuator{fuel: 100, blockedFront: 1, frontDetected: true}
	m, tr := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	if err := m.Forward(); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if a.digCalls != 1 || a.attackCalls != 1 {
		t.Fatalf("expected one clear cycle, got dig=%d attack=%d", a.digCalls, a.attackCalls)
	}
	if tr.Pose.Z != 1 {
		t.Fatalf("expected to advance after clearing, got %+v", tr.Pose)
	}
}

func TestMover_BlockedExhaustsRetries(t *testing.T) {
	a := &fakeActuator{fuel: 100, blockedFront: 100}
	m, _ := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	err := m.Forward()
	if !errors.Is(err, errs.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestMover_TurnLeftRight(t *testing.T) {
	a := &fakeActuator{fuel: 100}
	m, tr := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	if err := m.TurnRight(); err != nil {
		t.Fatal(err)
	}
	if tr.Pose.Dir != model.DirEast {
		t.Fatalf("expected DirEast after turn right from north, got %v", tr.Pose.Dir)
	}
	if err := m.TurnLeft(); err != nil {
		t.Fatal(err)
	}
	if tr.Pose.Dir != model.DirNorth {
		t.Fatalf("expected DirNorth after turning back, got %v", tr.Pose.Dir)
	}
}

func TestMover_DigForwardNoOpWhenClear(t *testing.T) {
	a := &fakeActuator{fuel: 100, frontDetected: false}
	m, _ := newTestMover(t, a, model.BoundingBox{MaxX: 10, MaxY: 10, MaxZ: 10})

	if err := m.DigForward(); err != nil {
		t.Fatal(err)
	}
	if a.digCalls != 0 {
		t.Fatalf("expected no dig call when face already clear, got %d", a.digCalls)
	}
}
