// Package worker ties every AutoMine component into the single-goroutine
// tick loop described in spec.md §2 and §5: receive-with-timeout,
// membership/leader update, system-job enqueue, tunnel request/claim,
// pop the highest-priority job, take one bounded step, heartbeat-if-due.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/bus"
	"github.com/DannyDoesGraphics/auto-mine/pkg/config"
	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/fuel"
	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/membership"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/movement"
	"github.com/DannyDoesGraphics/auto-mine/pkg/navigator"
	"github.com/DannyDoesGraphics/auto-mine/pkg/ore"
	"github.com/DannyDoesGraphics/auto-mine/pkg/pose"
	"github.com/DannyDoesGraphics/auto-mine/pkg/queue"
	"github.com/DannyDoesGraphics/auto-mine/pkg/recall"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
	"github.com/DannyDoesGraphics/auto-mine/pkg/tunnel"
)

// Worker drives one agent's tick loop against the shared store.
type Worker struct {
	store     store.StoreInterface
	journal   *journal.Journal
	bus       *bus.Bus
	members   *membership.Table
	cfgMgr    *config.Manager
	tunnelP   *tunnel.Protocol
	oreScan   *ore.Scanner
	fuelP     *fuel.Protocol
	recallP   *recall.Protocol
	mv        *movement.Mover
	nav       *navigator.Navigator
	q         *queue.Queue
	inventory fuel.Inventory

	quarryID string
	agentID  string
	cfg      model.QuarryConfig

	recvTimeout   time.Duration
	lastHeartbeat time.Time
}

// Deps bundles the injected native interfaces a Worker drives, allowing
// tests to supply fakes in place of a real turtle.
type Deps struct {
	Actuator  movement.WorldActuator
	Inventory fuel.Inventory
	Inspector ore.Inspector
}

// New wires every component for one agent against s, scoped to quarryID
// and agentID, using tracker as the already-calibrated pose tracker.
func New(s store.StoreInterface, tracker *pose.Tracker, deps Deps, quarryID, agentID string, cfg model.QuarryConfig, maxJobFailures int) (*Worker, error) {
	j := journal.New(s)
	mv := movement.New(deps.Actuator, tracker, j, cfg.FuelReserve, cfg.ClearRetryLimit)
	nav := navigator.New(mv)
	b := bus.New(s, j, quarryID, agentID, 200*time.Millisecond)
	members := membership.New(s, agentID, time.Duration(cfg.HeartbeatTimeout)*time.Millisecond)
	cfgMgr := config.NewManager(s, b)
	tunnelP := tunnel.New(s, j, agentID)
	fuelP := fuel.New(nav, deps.Inventory, cfg, j)
	oreScan := ore.New(mv, nav, deps.Inspector, s, cfg.OreTags)
	recallP := recall.New(s, nav, mv, fuelP)

	q, err := queue.Load(s, maxJobFailures)
	if err != nil {
		return nil, fmt.Errorf("worker: load queue: %w", err)
	}

	mv.RegisterVerifiers()
	b.RegisterVerifier()
	tunnelP.RegisterVerifiers()
	fuelP.RegisterVerifiers()

	return &Worker{
		store: s, journal: j, bus: b, members: members, cfgMgr: cfgMgr,
		tunnelP: tunnelP, oreScan: oreScan, fuelP: fuelP, recallP: recallP,
		mv: mv, nav: nav, q: q, inventory: deps.Inventory,
		quarryID: quarryID, agentID: agentID, cfg: cfg,
		recvTimeout: 50 * time.Millisecond,
	}, nil
}

// Resume replays any journal entries pending from a prior crash before
// the first tick, per spec.md §4.1.
func (w *Worker) Resume() ([]journal.Outcome, error) {
	return w.journal.Resume()
}

// Tick runs one iteration of the control loop described in spec.md §2.
func (w *Worker) Tick(ctx context.Context) error {
	if err := w.receiveAndApply(ctx); err != nil {
		return fmt.Errorf("tick: receive: %w", err)
	}

	isLeader, err := w.members.IsLeader()
	if err != nil {
		return fmt.Errorf("tick: leader: %w", err)
	}
	if isLeader {
		if err := w.reclaimDeadTunnels(); err != nil {
			return fmt.Errorf("tick: reclaim: %w", err)
		}
	}

	if err := w.enqueueSystemJobs(); err != nil {
		return fmt.Errorf("tick: system jobs: %w", err)
	}

	if err := w.preemptIfHigherPriorityPending(); err != nil {
		return fmt.Errorf("tick: preempt: %w", err)
	}

	if w.q.Active() == nil {
		if err := w.claimWork(); err != nil {
			return fmt.Errorf("tick: claim work: %w", err)
		}
	}
	if w.q.Active() == nil && w.q.Len() > 0 {
		if _, err := w.q.Pop(); err != nil {
			return fmt.Errorf("tick: pop: %w", err)
		}
	}

	if job := w.q.Active(); job != nil {
		if err := w.step(*job); err != nil {
			return fmt.Errorf("tick: step %s: %w", job.Type, err)
		}
	}

	return w.heartbeatIfDue()
}

// receiveAndApply drains pending bus messages and applies membership,
// recall, and config side effects.
func (w *Worker) receiveAndApply(ctx context.Context) error {
	msgs, err := w.bus.Receive(ctx, w.recvTimeout)
	if err != nil {
		return err
	}
	var configMsgs []model.BusMessage
	for _, m := range msgs {
		switch m.Kind {
		case model.MsgHeartbeat:
			var body struct {
				ConfigVersion int64             `json:"config_version"`
				Status        model.AgentStatus `json:"status"`
				Job           string            `json:"job,omitempty"`
				Fuel          int               `json:"fuel"`
			}
			if err := json.Unmarshal([]byte(m.Body), &body); err != nil {
				continue
			}
			if err := w.members.Observe(m.Sender, body.ConfigVersion, body.Status, body.Job, body.Fuel); err != nil {
				return err
			}
			if membership.ConfigDrift(w.cfg.ConfigVersion, body.ConfigVersion) {
				if _, err := w.cfgMgr.RequestFromPeers(ctx, w.recvTimeout); err != nil {
					return fmt.Errorf("%w: %v", errs.ErrConfigDrift, err)
				}
			}
		case model.MsgRecall:
			var body model.RecallState
			if err := json.Unmarshal([]byte(m.Body), &body); err != nil {
				continue
			}
			if err := w.store.SetRecall(body.Active); err != nil {
				return err
			}
		case model.MsgConfigRequest:
			configMsgs = append(configMsgs, m)
		case model.MsgConfigUpdate:
			var newCfg model.QuarryConfig
			if err := json.Unmarshal([]byte(m.Body), &newCfg); err != nil {
				continue
			}
			if err := w.applyConfigUpdate(newCfg); err != nil {
				return err
			}
		}
	}
	if len(configMsgs) > 0 {
		if err := w.cfgMgr.RespondToRequests(configMsgs); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) reclaimDeadTunnels() error {
	live, err := w.members.Live()
	if err != nil {
		return err
	}
	liveIDs := make(map[string]bool, len(live))
	for _, a := range live {
		liveIDs[a.ID] = true
	}
	liveIDs[w.agentID] = true
	return tunnel.ReclaimDead(w.store, liveIDs)
}

// enqueueSystemJobs ensures the priority-0/1 system jobs (recall, refuel)
// are represented in the live queue whenever their trigger condition
// holds; Queue.Enqueue is idempotent for these types per spec.md §4.6.
func (w *Worker) enqueueSystemJobs() error {
	active, err := recall.Active(w.store)
	if err != nil {
		return err
	}
	if active {
		if err := w.q.Enqueue(model.Job{Type: model.JobRecall, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}

	if w.inventoryFuelLevel() < w.cfg.FuelReserve || w.mv.FuelLow() {
		if err := w.q.Enqueue(model.Job{Type: model.JobRefuel, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

// applyConfigUpdate persists a broadcast config_update locally and, per
// spec.md §8 scenario 3, enqueues a recall for this agent alone when its
// current pose now falls outside the new bounding box.
func (w *Worker) applyConfigUpdate(newCfg model.QuarryConfig) error {
	if err := w.store.SaveConfig(newCfg); err != nil {
		return err
	}
	w.cfg = newCfg
	if !newCfg.BBox.Contains(w.mv.Pose()) {
		if err := w.q.Enqueue(model.Job{Type: model.JobRecall, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) inventoryFuelLevel() int {
	return w.inventory.FuelLevel()
}

// tunnelStepCost is the primitive-action cost of one tunnel_mine step
// (dig forward, dig up, move forward), matching spec.md §8 scenario 5.
const tunnelStepCost = 3

// preemptIfHigherPriorityPending yields the active job back to the
// pending heap when a strictly higher-priority job is waiting, so a
// priority-0 recall (or any other) becomes active within one tick
// instead of waiting for the current job to finish, per spec.md §5 and
// invariant #5 (active priority never exceeds every pending priority).
func (w *Worker) preemptIfHigherPriorityPending() error {
	active := w.q.Active()
	if active == nil {
		return nil
	}
	pending, ok := w.q.PeekPriority()
	if !ok || pending >= active.Priority() {
		return nil
	}
	return w.q.Yield()
}

// claimWork requests a tunnel claim, when no job is active and nothing
// of higher priority is queued, enqueuing the grant as a tunnel_mine job.
// Per spec.md §4.5's worst-case accounting, a tunnel is only claimed
// when fuel covers one step plus the trip home plus the safety margin;
// otherwise a refuel is queued instead of claiming work we can't afford.
func (w *Worker) claimWork() error {
	if w.q.Len() > 0 {
		return nil
	}
	if !w.fuelP.CanAfford(w.inventoryFuelLevel(), fuel.EstimateJobCost(tunnelStepCost), w.mv.Pose()) {
		return w.q.Enqueue(model.Job{Type: model.JobRefuel, CreatedAt: time.Now()})
	}
	t, err := w.tunnelP.RequestTunnel(w.agentID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if _, err := w.tunnelP.AcceptClaim(t); err != nil {
		return err
	}
	payload, err := json.Marshal(tunnelJobPayload{TunnelID: t.ID})
	if err != nil {
		return err
	}
	return w.q.Enqueue(model.Job{Type: model.JobTunnelMine, Payload: string(payload), CreatedAt: time.Now()})
}

type tunnelJobPayload struct {
	TunnelID string `json:"tunnel_id"`
}

// step executes one bounded increment of job, per the job's type.
func (w *Worker) step(job model.Job) error {
	switch job.Type {
	case model.JobRecall:
		return w.stepRecall()
	case model.JobRefuel:
		return w.stepRefuel()
	case model.JobOreMine:
		return w.stepOreMine(job)
	case model.JobTunnelMine:
		return w.stepTunnelMine(job)
	default:
		return fmt.Errorf("step: unknown job type %s", job.Type)
	}
}

// stepRecall runs one bounded recall step and completes the job once the
// fleet-wide flag has cleared and the agent's pose is back inside the
// current bounding box (so a bbox-shrink-triggered recall, which never
// sets the fleet-wide flag, still converges once home is reached).
func (w *Worker) stepRecall() error {
	if err := w.recallP.Run(w.cfg.BBox); err != nil {
		return err
	}
	active, err := recall.Active(w.store)
	if err != nil {
		return err
	}
	if !active && w.cfg.BBox.Contains(w.mv.Pose()) {
		return w.q.Complete()
	}
	return nil
}

func (w *Worker) stepRefuel() error {
	err := w.fuelP.Refuel()
	if err == nil {
		return w.q.Complete()
	}
	if errors.Is(err, errs.ErrChestEmpty) {
		return w.q.Fail(true)
	}
	return w.q.Fail(false)
}

func (w *Worker) stepOreMine(job model.Job) error {
	var o model.OreObservation
	if err := json.Unmarshal([]byte(job.Payload), &o); err != nil {
		_ = w.q.Fail(false)
		return fmt.Errorf("step ore_mine: parse payload: %w", err)
	}
	if _, err := w.oreScan.FloodFill([3]int{o.X, o.Y, o.Z}, o.Block, w.cfg.BBox, w.cfg.FloodFillCap); err != nil {
		return w.q.Fail(true)
	}
	return w.q.Complete()
}

// enqueueOreJobs turns newly observed ore into ore_mine jobs. Dedup
// across agents happens one layer down: UpsertOreObservation only
// reports a position as "fresh" to the agent that first recorded it, so
// at most one agent ever enqueues a job for a given (pos, block) pair,
// per spec.md §8 scenario 4.
func (w *Worker) enqueueOreJobs(fresh []model.OreObservation) error {
	for _, o := range fresh {
		payload, err := ore.NewJobPayload(o)
		if err != nil {
			return err
		}
		if err := w.q.Enqueue(model.Job{Type: model.JobOreMine, Payload: payload, CreatedAt: time.Now()}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) stepTunnelMine(job model.Job) error {
	var p tunnelJobPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		_ = w.q.Fail(false)
		return fmt.Errorf("step tunnel_mine: parse payload: %w", err)
	}
	t, err := w.store.GetTunnel(p.TunnelID)
	if err != nil {
		return w.q.Fail(false)
	}
	if t.Progress >= t.Length {
		if _, err := w.tunnelP.Release(t.ID, model.TunnelDone); err != nil {
			return err
		}
		return w.q.Complete()
	}

	// Worst-case fuel accounting (spec.md §8 scenario 5): if this step
	// would leave too little fuel for the trip home plus the safety
	// margin, queue a refuel ahead of the tunnel and yield — the tunnel
	// job resumes at the same t.Progress with no double-mining once the
	// refuel completes.
	if !w.fuelP.CanAfford(w.inventoryFuelLevel(), fuel.EstimateJobCost(tunnelStepCost), w.mv.Pose()) {
		if err := w.q.Enqueue(model.Job{Type: model.JobRefuel, CreatedAt: time.Now()}); err != nil {
			return err
		}
		return w.q.Yield()
	}

	frontier := model.Pose{X: t.OriginX, Y: t.OriginY, Z: t.OriginZ + t.Progress, Dir: model.DirNorth}
	if w.mv.Pose() != frontier {
		if err := w.nav.NavigateTo(frontier); err != nil {
			return w.q.Fail(true)
		}
		if err := w.nav.FaceDirection(frontier.Dir); err != nil {
			return w.q.Fail(true)
		}
	}
	if err := w.mv.DigForward(); err != nil {
		return w.q.Fail(true)
	}
	if err := w.mv.DigUp(); err != nil {
		return w.q.Fail(true)
	}
	if err := w.mv.Forward(); err != nil {
		return w.q.Fail(true)
	}
	fresh, err := w.oreScan.ScanCorridor()
	if err != nil {
		return w.q.Fail(true)
	}
	if err := w.enqueueOreJobs(fresh); err != nil {
		return err
	}

	progress := t.Progress + 1
	if err := w.tunnelP.ReportProgress(t.ID, progress); err != nil {
		return err
	}
	if progress >= t.Length {
		if _, err := w.tunnelP.Release(t.ID, model.TunnelDone); err != nil {
			return err
		}
		return w.q.Complete()
	}
	return nil
}

func (w *Worker) heartbeatIfDue() error {
	interval := time.Duration(w.cfg.HeartbeatInterval) * time.Millisecond
	if time.Since(w.lastHeartbeat) < interval {
		return nil
	}
	status := model.StatusOK
	if active, err := recall.Active(w.store); err == nil && active {
		status = model.StatusRecalled
	}
	jobLabel := ""
	if job := w.q.Active(); job != nil {
		jobLabel = job.Type.String()
	}
	if _, err := w.bus.Heartbeat(w.cfg.ConfigVersion, status, jobLabel, w.inventoryFuelLevel()); err != nil {
		return err
	}
	if err := w.members.Observe(w.agentID, w.cfg.ConfigVersion, status, jobLabel, w.inventoryFuelLevel()); err != nil {
		return err
	}
	w.lastHeartbeat = time.Now()
	return nil
}
