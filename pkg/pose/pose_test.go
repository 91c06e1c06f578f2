package pose

import (
	"context"
	"testing"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// fakeDescender simulates a turtle blocked below for blockedFor Down()
// calls before the column is clear, then stops after floorDepth cells.
type fakeDescender struct {
	blockedFor int
	floorDepth int
	downCalls  int
	facedDir   model.Direction
}

func (f *fakeDescender) TurnTo(dir model.Direction) error {
	f.facedDir = dir
	return nil
}

func (f *fakeDescender) Up() (bool, error) { return true, nil }

func (f *fakeDescender) Down() (bool, error) {
	if f.downCalls < f.blockedFor {
		f.downCalls++
		return false, nil
	}
	if f.downCalls < f.blockedFor+f.floorDepth {
		f.downCalls++
		return true, nil
	}
	return false, nil
}

func TestCalibrate_ImmediateFloor(t *testing.T) {
	d := &fakeDescender{floorDepth: 3}
	pose, err := Calibrate(context.Background(), d, CalibrationParams{
		SpawnFacing: model.DirEast, MaxClimbRetries: 3, BaseBackoff: time.Microsecond,
	})
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if pose.X != 0 || pose.Y != 0 || pose.Z != 0 {
		t.Fatalf("expected normalized origin pose, got %+v", pose)
	}
	if d.facedDir != model.DirEast {
		t.Fatalf("expected to face spawn direction, got %v", d.facedDir)
	}
}

func TestCalibrate_RetriesThenSucceeds(t *testing.T) {
	d := &fakeDescender{blockedFor: 2, floorDepth: 2}
	_, err := Calibrate(context.Background(), d, CalibrationParams{
		SpawnFacing: model.DirNorth, MaxClimbRetries: 5, BaseBackoff: time.Microsecond,
	})
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
}

func TestCalibrate_ExhaustsRetries(t *testing.T) {
	d := &fakeDescender{blockedFor: 10, floorDepth: 1}
	_, err := Calibrate(context.Background(), d, CalibrationParams{
		SpawnFacing: model.DirNorth, MaxClimbRetries: 2, BaseBackoff: time.Microsecond,
	})
	if err == nil {
		t.Fatal("expected calibration to fail after exhausting climb retries")
	}
}

func TestTracker_ContainsIgnoredBeforeCalibration(t *testing.T) {
	tr := New(model.BoundingBox{MaxX: 4, MaxY: 4, MaxZ: 4})
	tr.Pose = model.Pose{X: 100, Y: 100, Z: 100}
	if !tr.Contains() {
		t.Fatal("bounding box should be ignored before calibration")
	}
}

func TestTracker_ContainsEnforcedAfterCalibration(t *testing.T) {
	tr := New(model.BoundingBox{MaxX: 4, MaxY: 4, MaxZ: 4})
	tr.SetCalibrated(model.Pose{X: 0, Y: 0, Z: 0})
	if !tr.Contains() {
		t.Fatal("origin should be inside the bounding box")
	}
	tr.Pose.X = 10
	if tr.Contains() {
		t.Fatal("pose outside bbox should fail Contains after calibration")
	}
}
