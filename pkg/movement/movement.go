// Package movement implements the six motion primitives and three
// clearing digs described in spec.md §4.2: each primitive is gated by
// the bounding box and fuel level, journalled before the native action
// runs, and retries obstruction-clearing up to a bounded count before
// surfacing Blocked.
package movement

import (
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/pose"
)

// Face names the side of the turtle a clearing action targets.
type Face int

const (
	FaceFront Face = iota
	FaceUp
	FaceDown
)

// Kind names a movement primitive, used as the journal entry's kind.
type Kind string

const (
	KindForward   Kind = "move_forward"
	KindBack      Kind = "move_back"
	KindUp        Kind = "move_up"
	KindDown      Kind = "move_down"
	KindTurnLeft  Kind = "turn_left"
	KindTurnRight Kind = "turn_right"
	KindDigFwd    Kind = "dig_forward"
	KindDigUp     Kind = "dig_up"
	KindDigDown   Kind = "dig_down"
)

// WorldActuator is the native action interface a Mover drives. It is
// injected so movement logic can be tested without a real turtle.
type WorldActuator interface {
	MoveForward() (bool, error)
	MoveBack() (bool, error)
	MoveUp() (bool, error)
	MoveDown() (bool, error)
	TurnLeft() error
	TurnRight() error
	Detect(face Face) bool
	Dig(face Face) (bool, error)
	Attack(face Face) (bool, error)
	Fuel() int
}

// targetDelta is the unit step vector for each non-turn primitive.
func targetDelta(k Kind, facing model.Direction) (dx, dy, dz int) {
	switch k {
	case KindUp:
		return 0, 1, 0
	case KindDown:
		return 0, -1, 0
	case KindForward:
		dx, dz = facing.Delta()
		return dx, 0, dz
	case KindBack:
		dx, dz = facing.Delta()
		return -dx, 0, -dz
	}
	return 0, 0, 0
}

// Mover drives one agent's movement primitives against its tracked
// pose, journal, and bounding box.
type Mover struct {
	actuator WorldActuator
	tracker  *pose.Tracker
	journal  *journal.Journal

	fuelReserve     int
	clearRetryLimit int
}

// New returns a Mover. fuelReserve is the threshold FuelLow compares
// the actuator's fuel against; primitives themselves only refuse to
// move once fuel is below 1. clearRetryLimit bounds the
// detect-dig-attack obstruction loop.
func New(actuator WorldActuator, tracker *pose.Tracker, j *journal.Journal, fuelReserve, clearRetryLimit int) *Mover {
	return &Mover{
		actuator:        actuator,
		tracker:         tracker,
		journal:         j,
		fuelReserve:     fuelReserve,
		clearRetryLimit: clearRetryLimit,
	}
}

// RegisterVerifiers wires this Mover's verifiers into j so journal
// replay after a crash can resolve pending move/turn/dig entries,
// satisfying the required verifier kinds from spec.md §4.1.
func (m *Mover) RegisterVerifiers() {
	targetPoseVerifier := func(payload []byte) (bool, error) {
		var want model.Pose
		if err := unmarshalPayload(payload, &want); err != nil {
			return false, err
		}
		return m.tracker.Pose == want, nil
	}
	m.journal.RegisterVerifier(string(KindForward), targetPoseVerifier)
	m.journal.RegisterVerifier(string(KindBack), targetPoseVerifier)
	m.journal.RegisterVerifier(string(KindUp), targetPoseVerifier)
	m.journal.RegisterVerifier(string(KindDown), targetPoseVerifier)

	dirVerifier := func(payload []byte) (bool, error) {
		var want struct{ Dir model.Direction }
		if err := unmarshalPayload(payload, &want); err != nil {
			return false, err
		}
		return m.tracker.Pose.Dir == want.Dir, nil
	}
	m.journal.RegisterVerifier(string(KindTurnLeft), dirVerifier)
	m.journal.RegisterVerifier(string(KindTurnRight), dirVerifier)

	digVerifier := func(face Face) journal.Verifier {
		return func(payload []byte) (bool, error) {
			return !m.actuator.Detect(face), nil
		}
	}
	m.journal.RegisterVerifier(string(KindDigFwd), digVerifier(FaceFront))
	m.journal.RegisterVerifier(string(KindDigUp), digVerifier(FaceUp))
	m.journal.RegisterVerifier(string(KindDigDown), digVerifier(FaceDown))
}

// Pose returns the tracker's current pose.
func (m *Mover) Pose() model.Pose { return m.tracker.Pose }

// FuelLow reports whether the actuator's own fuel level (not the spare
// fuel carried in inventory) has fallen below the reserve threshold.
// It does not block a primitive by itself — callers use it to decide
// whether to escalate a refuel job ahead of the next tunnel step.
func (m *Mover) FuelLow() bool {
	return m.actuator.Fuel() < m.fuelReserve
}

// Forward steps one cell in the facing direction, clearing obstructions.
func (m *Mover) Forward() error { return m.step(KindForward, m.actuator.MoveForward) }

// Back steps one cell opposite the facing direction.
func (m *Mover) Back() error { return m.step(KindBack, m.actuator.MoveBack) }

// Up steps one cell vertically up.
func (m *Mover) Up() error { return m.step(KindUp, m.actuator.MoveUp) }

// Down steps one cell vertically down.
func (m *Mover) Down() error { return m.step(KindDown, m.actuator.MoveDown) }

func (m *Mover) step(kind Kind, move func() (bool, error)) error {
	dx, dy, dz := targetDelta(kind, m.tracker.Pose.Dir)
	target := model.Pose{
		X: m.tracker.Pose.X + dx, Y: m.tracker.Pose.Y + dy, Z: m.tracker.Pose.Z + dz,
		Dir: m.tracker.Pose.Dir,
	}
	if m.tracker.Calibrated() && !m.tracker.BBox.Contains(target) {
		return fmt.Errorf("move %s to %+v: %w", kind, target, errs.ErrOutOfBounds)
	}
	if m.actuator.Fuel() < 1 {
		return fmt.Errorf("move %s: %w", kind, errs.ErrFuelExhausted)
	}

	id, err := m.journal.Begin(string(kind), target)
	if err != nil {
		return fmt.Errorf("move %s: journal begin: %w", kind, err)
	}

	face := faceFor(kind)
	ok, err := move()
	if err != nil {
		return fmt.Errorf("move %s: %w", kind, err)
	}
	for attempt := 0; !ok && attempt < m.clearRetryLimit; attempt++ {
		if err := m.clear(face); err != nil {
			return fmt.Errorf("move %s: clear obstruction: %w", kind, err)
		}
		ok, err = move()
		if err != nil {
			return fmt.Errorf("move %s: %w", kind, err)
		}
	}
	if !ok {
		return fmt.Errorf("move %s: %w", kind, errs.ErrBlocked)
	}

	m.tracker.Pose = target
	if err := m.journal.Complete(id); err != nil {
		return fmt.Errorf("move %s: journal complete: %w", kind, err)
	}
	return nil
}

func faceFor(kind Kind) Face {
	switch kind {
	case KindUp:
		return FaceUp
	case KindDown:
		return FaceDown
	default:
		return FaceFront
	}
}

// clear runs one detect-dig-attack cycle against face, a no-op if the
// face is already clear (the obstruction may be an entity the previous
// attack already removed).
func (m *Mover) clear(face Face) error {
	if !m.actuator.Detect(face) {
		return nil
	}
	if _, err := m.actuator.Dig(face); err != nil {
		return err
	}
	if _, err := m.actuator.Attack(face); err != nil {
		return err
	}
	return nil
}

// TurnLeft rotates the pose counter-clockwise, journalled idempotently:
// the verifier checks the resulting absolute direction.
func (m *Mover) TurnLeft() error { return m.turn(KindTurnLeft, -1, m.actuator.TurnLeft) }

// TurnRight rotates the pose clockwise.
func (m *Mover) TurnRight() error { return m.turn(KindTurnRight, 1, m.actuator.TurnRight) }

func (m *Mover) turn(kind Kind, quarterTurns int, native func() error) error {
	target := m.tracker.Pose.Dir.Turn(quarterTurns)
	id, err := m.journal.Begin(string(kind), struct{ Dir model.Direction }{target})
	if err != nil {
		return fmt.Errorf("turn %s: journal begin: %w", kind, err)
	}
	if err := native(); err != nil {
		return fmt.Errorf("turn %s: %w", kind, err)
	}
	m.tracker.Pose.Dir = target
	if err := m.journal.Complete(id); err != nil {
		return fmt.Errorf("turn %s: journal complete: %w", kind, err)
	}
	return nil
}

// DigForward, DigUp, and DigDown clear a single block without moving,
// used to open a tunnel corridor ahead of travel.
func (m *Mover) DigForward() error { return m.dig(KindDigFwd, FaceFront) }
func (m *Mover) DigUp() error      { return m.dig(KindDigUp, FaceUp) }
func (m *Mover) DigDown() error    { return m.dig(KindDigDown, FaceDown) }

func (m *Mover) dig(kind Kind, face Face) error {
	id, err := m.journal.Begin(string(kind), struct{}{})
	if err != nil {
		return fmt.Errorf("dig %s: journal begin: %w", kind, err)
	}
	if m.actuator.Detect(face) {
		if _, err := m.actuator.Dig(face); err != nil {
			return fmt.Errorf("dig %s: %w", kind, err)
		}
	}
	if err := m.journal.Complete(id); err != nil {
		return fmt.Errorf("dig %s: journal complete: %w", kind, err)
	}
	return nil
}
