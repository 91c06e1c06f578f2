package bus

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/journal"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

func newTestBus(t *testing.T, sender string) (*Bus, store.StoreInterface) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if _, err := s.RegisterAgent(sender); err != nil {
		t.Fatal(err)
	}
	j := journal.New(s)
	b := New(s, j, "quarry-1", sender, 5*time.Millisecond)
	b.RegisterVerifier()
	return b, s
}

func TestSend_PublishesAndVerifies(t *testing.T) {
	b, s := newTestBus(t, "agent-1")

	msg, err := b.Send(model.MsgRecall, "", `{"active":true}`)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Sender != "agent-1" || msg.Kind != model.MsgRecall {
		t.Fatalf("unexpected message: %+v", msg)
	}

	j := journal.New(s)
	outcomes, err := j.Resume()
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected nothing pending after a completed send, got %+v", outcomes)
	}
}

func TestHeartbeat_CarriesStatusAndFuel(t *testing.T) {
	b, s := newTestBus(t, "agent-1")
	if _, err := s.RegisterAgent("agent-2"); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Heartbeat(1, model.StatusOK, "job-1", 200); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	msgs, err := s.ListMessagesByKind("quarry-1", model.MsgHeartbeat, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one heartbeat message, got %d", len(msgs))
	}
	var body struct {
		Status model.AgentStatus `json:"status"`
		Fuel   int               `json:"fuel"`
	}
	if err := json.Unmarshal([]byte(msgs[0].Body), &body); err != nil {
		t.Fatalf("heartbeat body: %v", err)
	}
	if body.Status != model.StatusOK || body.Fuel != 200 {
		t.Fatalf("expected status %q and fuel 200, got %+v", model.StatusOK, body)
	}
}

func TestReceive_DeliversImmediatelyAvailableMessages(t *testing.T) {
	b1, s := newTestBus(t, "agent-1")
	if _, err := s.RegisterAgent("agent-2"); err != nil {
		t.Fatal(err)
	}
	if _, err := b1.Send(model.MsgRecall, "", `{"active":true}`); err != nil {
		t.Fatal(err)
	}

	j2 := journal.New(s)
	b2 := New(s, j2, "quarry-1", "agent-2", 5*time.Millisecond)

	msgs, err := b2.Receive(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Kind != model.MsgRecall {
		t.Fatalf("expected one recall message delivered, got %+v", msgs)
	}
}

func TestReceive_AdvancesCursorSoMessagesAreNotRedelivered(t *testing.T) {
	b1, s := newTestBus(t, "agent-1")
	if _, err := s.RegisterAgent("agent-2"); err != nil {
		t.Fatal(err)
	}
	if _, err := b1.Send(model.MsgRecall, "", `{"active":true}`); err != nil {
		t.Fatal(err)
	}

	j2 := journal.New(s)
	b2 := New(s, j2, "quarry-1", "agent-2", 5*time.Millisecond)

	if _, err := b2.Receive(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	msgs, err := b2.Receive(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no redelivery after cursor advance, got %+v", msgs)
	}
}

func TestReceive_TimesOutWithNothingNew(t *testing.T) {
	b, _ := newTestBus(t, "agent-1")
	start := time.Now()
	msgs, err := b.Receive(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if msgs != nil {
		t.Fatalf("expected nil on timeout, got %+v", msgs)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected Receive to wait roughly the full timeout")
	}
}

func TestReceive_RespectsContextCancellation(t *testing.T) {
	b, _ := newTestBus(t, "agent-1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Receive(ctx, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
