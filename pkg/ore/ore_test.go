package ore

import (
	"path/filepath"
	"testing"

	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/movement"
	"github.com/DannyDoesGraphics/auto-mine/pkg/navigator"
	"github.com/DannyDoesGraphics/auto-mine/pkg/pose"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

type fakeActuator struct{ fuel int }

func (f *fakeActuator) MoveForward() (bool, error)              { return true, nil }
func (f *fakeActuator) MoveBack() (bool, error)                 { return true, nil }
func (f *fakeActuator) MoveUp() (bool, error)                   { return true, nil }
func (f *fakeActuator) MoveDown() (bool, error)                 { return true, nil }
func (f *fakeActuator) TurnLeft() error                         { return nil }
func (f *fakeActuator) TurnRight() error                        { return nil }
func (f *fakeActuator) Detect(face movement.Face) bool          { return false }
func (f *fakeActuator) Dig(face movement.Face) (bool, error)    { return true, nil }
func (f *fakeActuator) Attack(face movement.Face) (bool, error) { return true, nil }
func (f *fakeActuator) Fuel() int                               { return f.fuel }

// fakeInspector reports a fixed block tag per face, whatever the
// agent's heading; faces missing from byFace report nothing present.
type fakeInspector struct {
	byFace map[movement.Face]string
}

func (f *fakeInspector) Inspect(face movement.Face) (string, bool, error) {
	tag, ok := f.byFace[face]
	return tag, ok, nil
}

func newTestScanner(t *testing.T, inspector Inspector, oreTags []string) (*Scanner, store.StoreInterface) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	j := journal.New(s)
	tr := pose.New(model.BoundingBox{MaxX: 20, MaxY: 20, MaxZ: 20})
	tr.SetCalibrated(model.Pose{})
	mv := movement.New(&fakeActuator{fuel: 1000}, tr, j, 10, 3)
	mv.RegisterVerifiers()
	nav := navigator.New(mv)
	return New(mv, nav, inspector, s, oreTags), s
}

func TestScanCorridor_RecordsOreHits(t *testing.T) {
	inspector := &fakeInspector{byFace: map[movement.Face]string{
		movement.FaceFront: "minecraft:iron_ore",
		movement.FaceUp:    "minecraft:stone",
		movement.FaceDown:  "minecraft:coal_ore",
	}}
	sc, s := newTestScanner(t, inspector, []string{"minecraft:iron_ore", "minecraft:coal_ore"})

	fresh, err := sc.ScanCorridor()
	if err != nil {
		t.Fatalf("ScanCorridor: %v", err)
	}
	if len(fresh) == 0 {
		t.Fatal("expected at least one fresh ore observation")
	}

	all, err := s.ListOreByStatus(model.OreQueued)
	if err != nil {
		t.Fatal(err)
	}
	foundIron, foundCoal := false, false
	for _, o := range all {
		if o.Block == "minecraft:iron_ore" {
			foundIron = true
		}
		if o.Block == "minecraft:coal_ore" {
			foundCoal = true
		}
	}
	if !foundIron || !foundCoal {
		t.Fatalf("expected both iron and coal ore recorded, got %+v", all)
	}
}

func TestScanCorridor_IgnoresNonOreBlocks(t *testing.T) {
	inspector := &fakeInspector{byFace: map[movement.Face]string{
		movement.FaceFront: "minecraft:stone",
		movement.FaceUp:    "minecraft:stone",
		movement.FaceDown:  "minecraft:stone",
	}}
	sc, s := newTestScanner(t, inspector, []string{"minecraft:iron_ore"})

	fresh, err := sc.ScanCorridor()
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no ore recorded, got %+v", fresh)
	}
	all, err := s.ListOreByStatus(model.OreQueued)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty registry, got %+v", all)
	}
}

func TestScanCorridor_DedupesOnRescan(t *testing.T) {
	inspector := &fakeInspector{byFace: map[movement.Face]string{
		movement.FaceFront: "minecraft:iron_ore",
	}}
	sc, s := newTestScanner(t, inspector, []string{"minecraft:iron_ore"})

	if _, err := sc.ScanCorridor(); err != nil {
		t.Fatal(err)
	}
	fresh2, err := sc.ScanCorridor()
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh2) != 0 {
		t.Fatalf("expected rescan to find nothing new, got %+v", fresh2)
	}
	all, err := s.ListOreByStatus(model.OreQueued)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected exactly three deduped entries (front, left, right), got %d", len(all))
	}
}

func TestFloodFill_ExpandsThroughSameBlockNeighborsAndCaps(t *testing.T) {
	sc, s := newTestScanner(t, &fakeInspector{}, []string{"minecraft:iron_ore"})

	// Seed a vein of 4 connected iron ore cells plus an unrelated one.
	positions := [][3]int{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}, {4, 0, 0}}
	for _, p := range positions {
		if _, err := s.UpsertOreObservation(p[0], p[1], p[2], "minecraft:iron_ore"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.UpsertOreObservation(10, 10, 10, "minecraft:iron_ore"); err != nil {
		t.Fatal(err)
	}

	bbox := model.BoundingBox{MaxX: 20, MaxY: 20, MaxZ: 20}
	mined, err := sc.FloodFill([3]int{1, 0, 0}, "minecraft:iron_ore", bbox, 10)
	if err != nil {
		t.Fatalf("FloodFill: %v", err)
	}
	if len(mined) != 4 {
		t.Fatalf("expected 4 cells mined (connected component only), got %d: %+v", len(mined), mined)
	}

	all, err := s.ListOreByStatus(model.OreMined)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries promoted to mined, got %d", len(all))
	}
}

func TestFloodFill_RespectsCap(t *testing.T) {
	sc, s := newTestScanner(t, &fakeInspector{}, []string{"minecraft:iron_ore"})

	for x := 1; x <= 5; x++ {
		if _, err := s.UpsertOreObservation(x, 0, 0, "minecraft:iron_ore"); err != nil {
			t.Fatal(err)
		}
	}

	bbox := model.BoundingBox{MaxX: 20, MaxY: 20, MaxZ: 20}
	mined, err := sc.FloodFill([3]int{1, 0, 0}, "minecraft:iron_ore", bbox, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(mined) != 2 {
		t.Fatalf("expected flood fill capped at 2, got %d", len(mined))
	}
}
