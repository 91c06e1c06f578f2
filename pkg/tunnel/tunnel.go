// Package tunnel implements tunnel plan generation and the tunnel
// mutex: any agent claims the first idle tunnel for itself through one
// store transaction, without routing the request through the leader,
// and reconciliation keeps whichever claim has made more progress.
package tunnel

import (
	"encoding/json"
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
	"github.com/google/uuid"
)

// GeneratePlan tiles the bounding box into tunnels per spec.md §4.7: for
// each y in {0, layerSpacing, 2*layerSpacing, ...} and each x in {0,
// tunnelSpacing, ...}, a tunnel of length chunkLength extends along +z
// from origin (x, y, 0). Callers must enforce tunnelSpacing >= 3 and
// layerSpacing >= 3 to preserve the 2-cell air gap invariant; GeneratePlan
// itself does not validate the config.
func GeneratePlan(cfg model.QuarryConfig) []model.Tunnel {
	var plan []model.Tunnel
	for y := 0; y <= cfg.BBox.MaxY; y += cfg.LayerSpacing {
		for x := 0; x <= cfg.BBox.MaxX; x += cfg.TunnelSpacing {
			plan = append(plan, model.Tunnel{
				ID:        uuid.NewString(),
				OriginX:   x,
				OriginY:   y,
				OriginZ:   0,
				Length:    cfg.ChunkLength,
				Progress:  0,
				State:     model.TunnelIdle,
				ConfigVer: cfg.ConfigVersion,
			})
		}
	}
	return plan
}

type claimPayload struct {
	TunnelID string `json:"tunnel_id"`
	AgentID  string `json:"agent_id"`
}

type releasePayload struct {
	TunnelID string `json:"tunnel_id"`
}

// Protocol drives the tunnel mutex for one agent: claiming a tunnel
// for itself, and journaling the claim/release steps it takes once
// granted one.
type Protocol struct {
	store   store.StoreInterface
	journal *journal.Journal
	agentID string
}

// New returns a Protocol for agentID.
func New(s store.StoreInterface, j *journal.Journal, agentID string) *Protocol {
	return &Protocol{store: s, journal: j, agentID: agentID}
}

// RegisterVerifiers wires claim_tunnel/release_tunnel into the journal,
// satisfying the required verifier kinds of spec.md §4.1.
func (p *Protocol) RegisterVerifiers() {
	p.journal.RegisterVerifier("claim_tunnel", p.verifyClaim)
	p.journal.RegisterVerifier("release_tunnel", p.verifyRelease)
}

func (p *Protocol) verifyClaim(payload []byte) (bool, error) {
	var cp claimPayload
	if err := json.Unmarshal(payload, &cp); err != nil {
		return false, fmt.Errorf("verify claim_tunnel: %w", err)
	}
	t, err := p.store.GetTunnel(cp.TunnelID)
	if err != nil {
		return false, fmt.Errorf("verify claim_tunnel: %w", err)
	}
	return t.ClaimedBy == cp.AgentID && (t.State == model.TunnelClaimed || t.State == model.TunnelActive), nil
}

func (p *Protocol) verifyRelease(payload []byte) (bool, error) {
	var rp releasePayload
	if err := json.Unmarshal(payload, &rp); err != nil {
		return false, fmt.Errorf("verify release_tunnel: %w", err)
	}
	t, err := p.store.GetTunnel(rp.TunnelID)
	if err != nil {
		return false, fmt.Errorf("verify release_tunnel: %w", err)
	}
	return t.ClaimedBy != p.agentID, nil
}

// RequestTunnel performs the grant step on behalf of the calling agent
// itself, leader or not: scan the plan for the first idle tunnel,
// transition it to claimed, and persist the assignment, all inside
// ClaimFirstIdleTunnel's transaction.
// Returns nil, nil if no tunnel is currently idle.
func (p *Protocol) RequestTunnel(agentID string) (*model.Tunnel, error) {
	t, err := p.store.ClaimFirstIdleTunnel(agentID)
	if err != nil {
		return nil, fmt.Errorf("request tunnel: %w", err)
	}
	return t, nil
}

// AcceptClaim journals claim_tunnel(id) for the granted tunnel, per
// step 3 of spec.md §4.7's protocol: the requester must journal the
// claim before starting tunnel work so a crash mid-dig can be verified
// and resumed. ClaimFirstIdleTunnel already persisted the claim inside
// its own transaction by the time this runs, so the entry is completed
// immediately — there is no separate native action left pending.
func (p *Protocol) AcceptClaim(t *model.Tunnel) (int64, error) {
	id, err := p.journal.Begin("claim_tunnel", claimPayload{TunnelID: t.ID, AgentID: p.agentID})
	if err != nil {
		return 0, err
	}
	if err := p.journal.Complete(id); err != nil {
		return 0, fmt.Errorf("accept claim %s: journal complete: %w", t.ID, err)
	}
	return id, nil
}

// ReportProgress persists in-flight progress on an actively-worked tunnel.
func (p *Protocol) ReportProgress(id string, progress int) error {
	return p.store.UpdateTunnelProgress(id, progress, model.TunnelActive)
}

// Release journals release_tunnel(id), clears the claim in the shared
// plan, and marks the tunnel's final state (done if fully mined, idle
// if abandoned mid-way).
func (p *Protocol) Release(id string, finalState model.TunnelState) (int64, error) {
	journalID, err := p.journal.Begin("release_tunnel", releasePayload{TunnelID: id})
	if err != nil {
		return 0, err
	}
	if err := p.store.ReleaseTunnel(id, finalState); err != nil {
		return 0, fmt.Errorf("release tunnel %s: %w", id, err)
	}
	if err := p.journal.Complete(journalID); err != nil {
		return 0, fmt.Errorf("release tunnel %s: journal complete: %w", id, err)
	}
	return journalID, nil
}

// Reconcile implements the duplicate-claim resolution of spec.md §4.9:
// on leader change, the new leader compares its observed progress
// against the stored claim and keeps whichever has made more progress,
// tie-breaking on lower agent id.
func (p *Protocol) Reconcile(id, candidateAgent string, candidateProgress int) (kept bool, err error) {
	kept, err = p.store.ReconcileTunnel(id, candidateAgent, candidateProgress)
	if err != nil {
		return false, fmt.Errorf("reconcile tunnel %s: %w", id, err)
	}
	return kept, nil
}

// ReclaimDead returns any tunnel claimed by a peer not present in
// liveAgentIDs back to idle, per spec.md §4.7: "unclaimed assignments
// for dead peers are returned to idle upon discovery."
func ReclaimDead(s store.StoreInterface, liveAgentIDs map[string]bool) error {
	tunnels, err := s.ListTunnels()
	if err != nil {
		return fmt.Errorf("reclaim dead tunnels: %w", err)
	}
	for _, t := range tunnels {
		if t.State != model.TunnelClaimed && t.State != model.TunnelActive {
			continue
		}
		if t.ClaimedBy == "" || liveAgentIDs[t.ClaimedBy] {
			continue
		}
		if err := s.ReleaseTunnel(t.ID, model.TunnelIdle); err != nil {
			return fmt.Errorf("reclaim tunnel %s: %w", t.ID, err)
		}
	}
	return nil
}
