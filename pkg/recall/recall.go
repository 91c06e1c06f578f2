// Package recall implements the priority-0 recall job from spec.md
// §6.9: deposit inventory, navigate home, climb the spawn column until
// obstructed, and wait there until the fleet-wide recall flag clears.
package recall

import (
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/fuel"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/movement"
	"github.com/DannyDoesGraphics/auto-mine/pkg/navigator"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// Protocol drives one recall pass for an agent.
type Protocol struct {
	store   store.StoreInterface
	nav     *navigator.Navigator
	mv      *movement.Mover
	fuelP   *fuel.Protocol
	spawned bool
}

// New returns a Protocol driving nav/mv for movement and fuelP for the
// deposit pass.
func New(s store.StoreInterface, nav *navigator.Navigator, mv *movement.Mover, fuelP *fuel.Protocol) *Protocol {
	return &Protocol{store: s, nav: nav, mv: mv, fuelP: fuelP}
}

// Active reports whether the fleet-wide recall flag is set.
func Active(s store.StoreInterface) (bool, error) {
	active, err := s.GetRecall()
	if err != nil {
		return false, fmt.Errorf("recall active: %w", err)
	}
	return active, nil
}

// Run executes one step of the recall sequence per call: off the
// spawn column it navigates to the origin (0,0,0); on the column, the
// first call deposits inventory, and each later call climbs one cell
// until blocked (arrived at the surface) or the pose is already at the
// top. Navigating and depositing each take several primitive actions,
// so a call is bounded by one such pass rather than one primitive.
func (p *Protocol) Run(bbox model.BoundingBox) error {
	pose := p.mv.Pose()
	if pose.X != 0 || pose.Z != 0 {
		return p.nav.NavigateTo(model.Pose{X: 0, Y: 0, Z: 0, Dir: pose.Dir})
	}
	if !p.spawned {
		if err := p.fuelP.Deposit(); err != nil {
			return fmt.Errorf("recall: deposit: %w", err)
		}
		p.spawned = true
		// Deposit may leave the origin column; the next call's navigate-home
		// check brings the agent back before climbing resumes.
		return nil
	}
	if pose.Y >= bbox.MaxY {
		return nil
	}
	if err := p.mv.Up(); err != nil {
		if errIsBlocked(err) {
			return nil
		}
		return fmt.Errorf("recall: climb: %w", err)
	}
	return nil
}

func errIsBlocked(err error) bool {
	for err != nil {
		if err == errs.ErrBlocked {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
