// Package bus implements the per-quarry broadcast protocol from
// spec.md §6: a table-backed message log scoped by quarryId, with
// sender-FIFO ordering via the store's per-sender monotonic sequence
// and a polling Receive bounded by an explicit timeout.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// ProtocolVersion is the bus protocol string agents scope their quarry
// under, per spec.md §6.
const ProtocolVersion = "auto_mine/1"

// Bus drives one agent's send/receive against the shared message log.
type Bus struct {
	store        store.StoreInterface
	journal      *journal.Journal
	quarryID     string
	sender       string
	pollInterval time.Duration
}

// New returns a Bus for sender within quarryID, polling every
// pollInterval while waiting on Receive.
func New(s store.StoreInterface, j *journal.Journal, quarryID, sender string, pollInterval time.Duration) *Bus {
	return &Bus{store: s, journal: j, quarryID: quarryID, sender: sender, pollInterval: pollInterval}
}

// RegisterVerifier wires broadcast(seq) into the journal, satisfying
// the required verifier kind from spec.md §4.1.
func (b *Bus) RegisterVerifier() {
	b.journal.RegisterVerifier("broadcast", b.verifyBroadcast)
}

type broadcastPayload struct {
	Sender   string              `json:"sender"`
	QuarryID string              `json:"quarry_id"`
	Kind     model.BusMessageKind `json:"kind"`
	Target   string              `json:"target"`
	Body     string              `json:"body"`
	AfterID  int64               `json:"after_id"`
}

func (b *Bus) verifyBroadcast(payload []byte) (bool, error) {
	var bp broadcastPayload
	if err := json.Unmarshal(payload, &bp); err != nil {
		return false, fmt.Errorf("verify broadcast: %w", err)
	}
	msgs, err := b.store.ListMessagesSince(bp.QuarryID, bp.AfterID, 0)
	if err != nil {
		return false, fmt.Errorf("verify broadcast: %w", err)
	}
	for _, m := range msgs {
		if m.Sender == bp.Sender && m.Kind == bp.Kind && m.Target == bp.Target && m.Body == bp.Body {
			return true, nil
		}
	}
	return false, nil
}

// Send journals the intent to broadcast, publishes the message, then
// completes the journal entry — the ordering rule of spec.md §4.1
// applied to a non-idempotent network send.
func (b *Bus) Send(kind model.BusMessageKind, target, body string) (*model.BusMessage, error) {
	afterID := b.store.MaxMessageID()
	id, err := b.journal.Begin("broadcast", broadcastPayload{
		Sender: b.sender, QuarryID: b.quarryID, Kind: kind, Target: target, Body: body, AfterID: afterID,
	})
	if err != nil {
		return nil, fmt.Errorf("bus send: journal begin: %w", err)
	}

	msg, err := b.store.PublishMessage(b.quarryID, b.sender, kind, target, body)
	if err != nil {
		return nil, fmt.Errorf("bus send: %w", err)
	}
	if err := b.journal.Complete(id); err != nil {
		return nil, fmt.Errorf("bus send: journal complete: %w", err)
	}
	return msg, nil
}

// Heartbeat broadcasts the periodic liveness message required by
// spec.md §4.9.
func (b *Bus) Heartbeat(configVersion int64, status model.AgentStatus, job string, fuel int) (*model.BusMessage, error) {
	body, err := json.Marshal(struct {
		ConfigVersion int64             `json:"config_version"`
		Status        model.AgentStatus `json:"status"`
		Job           string            `json:"job,omitempty"`
		Fuel          int               `json:"fuel"`
	}{configVersion, status, job, fuel})
	if err != nil {
		return nil, fmt.Errorf("heartbeat: marshal body: %w", err)
	}
	return b.Send(model.MsgHeartbeat, "", string(body))
}

// Receive polls for new messages directed at this agent or broadcast,
// advancing the persisted cursor on delivery, bounded by timeout —
// the explicitly bounded suspension point required by spec.md §5.
// Returns nil, nil on timeout with nothing new.
func (b *Bus) Receive(ctx context.Context, timeout time.Duration) ([]model.BusMessage, error) {
	deadline := time.Now().Add(timeout)
	cursor := b.store.GetCursor(b.sender)

	poll := func() ([]model.BusMessage, error) {
		msgs, err := b.store.ListMessagesForAgent(b.quarryID, b.sender, cursor, 0)
		if err != nil {
			return nil, fmt.Errorf("bus receive: %w", err)
		}
		if len(msgs) == 0 {
			return nil, nil
		}
		newCursor := msgs[len(msgs)-1].ID
		if err := b.store.SetCursor(b.sender, newCursor); err != nil {
			return nil, fmt.Errorf("bus receive: advance cursor: %w", err)
		}
		return msgs, nil
	}

	if msgs, err := poll(); err != nil || msgs != nil {
		return msgs, err
	}
	if timeout <= 0 {
		return nil, nil
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			msgs, err := poll()
			if err != nil || msgs != nil {
				return msgs, err
			}
			if time.Now().After(deadline) {
				return nil, nil
			}
		}
	}
}
