// Package pose tracks an agent's position/orientation in turtle-space
// and runs the one-time calibration preamble described in spec.md §4.4.
package pose

import (
	"context"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// Descender is the native "move down" action calibration depends on. It
// returns false (not an error) when the step is obstructed, matching the
// native turtle API's boolean move result.
type Descender interface {
	Down() (bool, error)
	Up() (bool, error)
	TurnTo(dir model.Direction) error
}

// Tracker holds the agent's current pose and the bounding box it must
// stay within once calibration completes.
type Tracker struct {
	Pose       model.Pose
	BBox       model.BoundingBox
	calibrated bool
}

// New returns a Tracker with an uncalibrated zero pose.
func New(bbox model.BoundingBox) *Tracker {
	return &Tracker{BBox: bbox}
}

// Calibrated reports whether the descent preamble has completed; the
// bounding-box invariant is only enforced after this returns true.
func (t *Tracker) Calibrated() bool { return t.calibrated }

// Contains reports whether the tracker's current pose satisfies the
// bounding box, a no-op exception during calibration per spec.md §3.
func (t *Tracker) Contains() bool {
	if !t.calibrated {
		return true
	}
	return t.BBox.Contains(t.Pose)
}

// CalibrationParams bounds the descent retry loop.
type CalibrationParams struct {
	SpawnFacing    model.Direction
	MaxClimbRetries int
	BaseBackoff    time.Duration
}

// Calibrate faces the configured spawn direction, then descends until
// Down() reports obstruction; if the very first descent is blocked
// (another agent stacked below), it climbs a bounded number of cells,
// waits with exponential backoff, and retries. The resulting floor Y
// becomes the turtle-space origin. Calibration is idempotent: resuming
// it re-runs the same descent and yields the same floor given the same
// world. It is not journalled.
func Calibrate(ctx context.Context, d Descender, p CalibrationParams) (model.Pose, error) {
	if err := d.TurnTo(p.SpawnFacing); err != nil {
		return model.Pose{}, fmt.Errorf("calibrate: face spawn direction: %w", err)
	}

	pose := model.Pose{Dir: p.SpawnFacing}
	descended := false
	for attempt := 0; ; attempt++ {
		ok, err := d.Down()
		if err != nil {
			return model.Pose{}, fmt.Errorf("calibrate: descend: %w", err)
		}
		if ok {
			descended = true
			pose.Y--
			continue
		}
		if descended {
			// Reached the floor after descending at least one cell.
			break
		}
		// Blocked on the very first attempt: another agent is stacked
		// below. Climb up and retry with exponential backoff.
		if attempt >= p.MaxClimbRetries {
			return model.Pose{}, fmt.Errorf("calibrate: %w: blocked below after %d retries", errs.ErrBlocked, attempt)
		}
		if _, err := d.Up(); err != nil {
			return model.Pose{}, fmt.Errorf("calibrate: climb retry: %w", err)
		}
		select {
		case <-ctx.Done():
			return model.Pose{}, ctx.Err()
		case <-time.After(p.BaseBackoff * time.Duration(1<<uint(attempt))):
		}
	}

	// Turtle-space origin is the floor cell: normalize Y to 0.
	pose.X, pose.Y, pose.Z = 0, 0, 0
	return pose, nil
}

// SetCalibrated records the calibrated origin pose and engages the
// bounding-box invariant for subsequent movement.
func (t *Tracker) SetCalibrated(p model.Pose) {
	t.Pose = p
	t.calibrated = true
}
