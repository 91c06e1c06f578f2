// Package membership implements the liveness table and stateless leader
// election described in spec.md §4.9: agents observe each other's
// heartbeats, a peer is live within heartbeatTimeout, and the leader is
// recomputed on every change as the live agent whose id sorts first by
// string comparison.
package membership

import (
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// Table tracks per-peer liveness and computes the current leader.
type Table struct {
	store            store.StoreInterface
	selfID           string
	heartbeatTimeout time.Duration
}

// New returns a Table for selfID using heartbeatTimeout as the
// liveness window.
func New(s store.StoreInterface, selfID string, heartbeatTimeout time.Duration) *Table {
	return &Table{store: s, selfID: selfID, heartbeatTimeout: heartbeatTimeout}
}

// Observe records a received heartbeat (from a peer or self).
func (t *Table) Observe(sender string, configVersion int64, status model.AgentStatus, job string, fuel int) error {
	if err := t.store.UpdateAgentHeartbeat(sender, configVersion, status, job, fuel); err != nil {
		return fmt.Errorf("membership observe %s: %w", sender, err)
	}
	return nil
}

// Live returns every agent whose lastSeen falls within heartbeatTimeout.
func (t *Table) Live() ([]model.Agent, error) {
	agents, err := t.store.ListLiveAgents(t.heartbeatTimeout)
	if err != nil {
		return nil, fmt.Errorf("membership live: %w", err)
	}
	return agents, nil
}

// Leader recomputes the leader fresh from the current live set plus
// self: the id that sorts first by plain string comparison, so self
// wins when no peer is live. Ids are not compared as numbers:
// "agent-10" sorts before "agent-9". Election is stateless — no
// voting or term numbers, just a deterministic function of the live set.
func (t *Table) Leader() (string, error) {
	live, err := t.Live()
	if err != nil {
		return "", err
	}
	leader := t.selfID
	for _, a := range live {
		if a.ID < leader {
			leader = a.ID
		}
	}
	return leader, nil
}

// IsLeader reports whether this agent is currently elected leader.
func (t *Table) IsLeader() (bool, error) {
	leader, err := t.Leader()
	if err != nil {
		return false, err
	}
	return leader == t.selfID, nil
}

// ConfigDrift reports whether an observed configVersion exceeds the
// locally-applied one, per spec.md §4.9: the agent must halt
// destructive jobs and issue a config_request until it re-validates
// its pose inside the new bounding box.
func ConfigDrift(localVersion, observedVersion int64) bool {
	return observedVersion > localVersion
}
