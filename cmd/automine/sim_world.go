package main

import (
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/movement"
)

// simWorld is a stand-in for the real turtle's native action interface.
// The coordination subsystem in this repo treats WorldActuator (and the
// parallel Inventory/Inspector/Descender boundaries) as injected per
// spec.md §4.2 — the concrete RPC to an actual robot is deliberately
// outside this repo's scope (see DESIGN.md). simWorld satisfies all four
// boundary interfaces with a world where moves always succeed, calibration
// finds the floor one cell down, and the inventory is empty, so
// `automine start` has something concrete to drive for local runs and
// demos.
type simWorld struct {
	fuel      int
	facing    model.Direction
	descended bool
}

func newSimWorld(fuel int) *simWorld {
	return &simWorld{fuel: fuel}
}

func (s *simWorld) MoveForward() (bool, error)               { return true, nil }
func (s *simWorld) MoveBack() (bool, error)                  { return true, nil }
func (s *simWorld) MoveUp() (bool, error)                    { return true, nil }
func (s *simWorld) MoveDown() (bool, error)                  { return true, nil }
func (s *simWorld) TurnLeft() error                          { s.facing = s.facing.Turn(-1); return nil }
func (s *simWorld) TurnRight() error                         { s.facing = s.facing.Turn(1); return nil }
func (s *simWorld) Detect(face movement.Face) bool           { return false }
func (s *simWorld) Dig(face movement.Face) (bool, error)     { return true, nil }
func (s *simWorld) Attack(face movement.Face) (bool, error)  { return true, nil }
func (s *simWorld) Fuel() int                                { return s.fuel }

// Descender, for pose.Calibrate: the first Down succeeds and every later
// one reports the floor, so calibration ends one cell down.
func (s *simWorld) Down() (bool, error) {
	if s.descended {
		return false, nil
	}
	s.descended = true
	return true, nil
}
func (s *simWorld) Up() (bool, error)                { return true, nil }
func (s *simWorld) TurnTo(dir model.Direction) error { s.facing = dir; return nil }

// Inventory: an empty chest/inventory — every agent starts fully fueled
// via simWorld.fuel and carries nothing to deposit.
func (s *simWorld) SlotCount() int                     { return 0 }
func (s *simWorld) SelectSlot(slot int) error          { return nil }
func (s *simWorld) Suck() (bool, error)                { return false, nil }
func (s *simWorld) ItemTag(slot int) string            { return "" }
func (s *simWorld) ItemCount(slot int) int             { return 0 }
func (s *simWorld) RefuelSelected() (bool, error)      { return false, nil }
func (s *simWorld) DropSelected(count int) error       { return nil }
func (s *simWorld) FuelLevel() int                     { return s.fuel }

// Inspector: no ore in the simulated world.
func (s *simWorld) Inspect(face movement.Face) (string, bool, error) { return "", false, nil }
