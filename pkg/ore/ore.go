// Package ore implements the ore registry's scanning and bounded
// flood-fill mining described in spec.md §4.8: a dedup keyed on
// (pos, block), a monotone queued->mined transition, and BFS expansion
// through same-block registry entries capped at a configured limit.
package ore

import (
	"encoding/json"
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/movement"
	"github.com/DannyDoesGraphics/auto-mine/pkg/navigator"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// Inspector identifies the block on a face, if any. Movement's Detect
// only reports presence; ore scanning additionally needs the block's
// tag to test it against the configured ore set.
type Inspector interface {
	Inspect(face movement.Face) (block string, present bool, err error)
}

// Scanner inspects the tunnel corridor cross-section for ore-tagged
// blocks and expands newly found veins via flood-fill.
type Scanner struct {
	mv        *movement.Mover
	nav       *navigator.Navigator
	inspector Inspector
	store     store.StoreInterface
	oreTags   []string
}

// New returns a Scanner driving mv/nav for movement and inspector for
// block identification, recording hits tagged in oreTags to s.
func New(mv *movement.Mover, nav *navigator.Navigator, inspector Inspector, s store.StoreInterface, oreTags []string) *Scanner {
	return &Scanner{mv: mv, nav: nav, inspector: inspector, store: s, oreTags: oreTags}
}

func isOreTag(tag string, tags []string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func faceOffset(face movement.Face, facing model.Direction) (dx, dy, dz int) {
	switch face {
	case movement.FaceUp:
		return 0, 1, 0
	case movement.FaceDown:
		return 0, -1, 0
	default:
		dx, dz = facing.Delta()
		return dx, 0, dz
	}
}

// ScanCorridor inspects five faces of the agent's own cell: front, up,
// and down at the agent's heading, then — turning left and right in
// place — the two lateral faces. The cell above the agent is not
// visited, so the front and lateral faces of the corridor's upper cell
// are not inspected. Any block matching the configured ore
// tags is recorded in the shared registry; newly inserted observations
// are returned so the caller can enqueue ore_mine jobs for them.
func (sc *Scanner) ScanCorridor() ([]model.OreObservation, error) {
	var fresh []model.OreObservation

	check := func(face movement.Face) error {
		block, present, err := sc.inspector.Inspect(face)
		if err != nil {
			return err
		}
		if !present || !isOreTag(block, sc.oreTags) {
			return nil
		}
		p := sc.mv.Pose()
		dx, dy, dz := faceOffset(face, p.Dir)
		x, y, z := p.X+dx, p.Y+dy, p.Z+dz
		inserted, err := sc.store.UpsertOreObservation(x, y, z, block)
		if err != nil {
			return err
		}
		if inserted {
			fresh = append(fresh, model.OreObservation{X: x, Y: y, Z: z, Block: block, Status: model.OreQueued})
		}
		return nil
	}

	if err := check(movement.FaceFront); err != nil {
		return nil, fmt.Errorf("scan front: %w", err)
	}
	if err := check(movement.FaceUp); err != nil {
		return nil, fmt.Errorf("scan up: %w", err)
	}
	if err := check(movement.FaceDown); err != nil {
		return nil, fmt.Errorf("scan down: %w", err)
	}

	if err := sc.mv.TurnLeft(); err != nil {
		return nil, fmt.Errorf("scan left: turn: %w", err)
	}
	leftErr := check(movement.FaceFront)
	if err := sc.mv.TurnRight(); err != nil {
		return nil, fmt.Errorf("scan left: restore heading: %w", err)
	}
	if leftErr != nil {
		return nil, fmt.Errorf("scan left: %w", leftErr)
	}

	if err := sc.mv.TurnRight(); err != nil {
		return nil, fmt.Errorf("scan right: turn: %w", err)
	}
	rightErr := check(movement.FaceFront)
	if err := sc.mv.TurnLeft(); err != nil {
		return nil, fmt.Errorf("scan right: restore heading: %w", err)
	}
	if rightErr != nil {
		return nil, fmt.Errorf("scan right: %w", rightErr)
	}

	return fresh, nil
}

// NewJobPayload marshals an ore observation as an ore_mine job payload.
func NewJobPayload(o model.OreObservation) (string, error) {
	blob, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("ore job payload: %w", err)
	}
	return string(blob), nil
}

func neighbors6(c [3]int) [][3]int {
	return [][3]int{
		{c[0] + 1, c[1], c[2]}, {c[0] - 1, c[1], c[2]},
		{c[0], c[1] + 1, c[2]}, {c[0], c[1] - 1, c[2]},
		{c[0], c[1], c[2] + 1}, {c[0], c[1], c[2] - 1},
	}
}

// FloodFill expands from a newly observed ore position through
// same-block registry entries connected by 6-neighbour adjacency,
// confined to bbox and capped at floodFillCap, navigating to and
// mining each cell in turn (the obstruction-clear in Navigator/Movement
// performs the actual dig). Every mined position is promoted in the
// shared registry, resolving the case where a peer already cleared part
// of the same vein.
func (sc *Scanner) FloodFill(origin [3]int, block string, bbox model.BoundingBox, floodFillCap int) ([][3]int, error) {
	registry, err := sc.store.ListOreByStatus(model.OreQueued)
	if err != nil {
		return nil, fmt.Errorf("flood fill: list registry: %w", err)
	}
	queued := make(map[[3]int]bool, len(registry))
	for _, o := range registry {
		if o.Block == block {
			queued[[3]int{o.X, o.Y, o.Z}] = true
		}
	}
	if !queued[origin] {
		// A peer already mined this vein (or this exact cell) since the
		// job was enqueued; the shared registry already reflects it, so
		// there is nothing left to flood-fill.
		return nil, nil
	}

	visited := map[[3]int]bool{origin: true}
	queue := [][3]int{origin}
	var mined [][3]int

	for len(queue) > 0 && len(mined) < floodFillCap {
		c := queue[0]
		queue = queue[1:]

		target := model.Pose{X: c[0], Y: c[1], Z: c[2], Dir: sc.mv.Pose().Dir}
		if err := sc.nav.NavigateTo(target); err != nil {
			return mined, fmt.Errorf("flood fill: navigate to %v: %w", c, err)
		}
		mined = append(mined, c)

		for _, n := range neighbors6(c) {
			if visited[n] {
				continue
			}
			visited[n] = true
			p := model.Pose{X: n[0], Y: n[1], Z: n[2]}
			if !bbox.Contains(p) || !queued[n] {
				continue
			}
			queue = append(queue, n)
		}
	}

	if err := sc.store.MarkPositionsMined(mined); err != nil {
		return mined, fmt.Errorf("flood fill: mark mined: %w", err)
	}
	return mined, nil
}
