// iface.go defines the StoreInterface for dependency injection and
// testing. The concrete *Store type satisfies this interface. Code that
// depends on the store (worker, membership, tunnel, ore, queue, journal)
// accepts StoreInterface instead of *Store, enabling mock injection in
// tests without a real SQLite file.
package store

import (
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// StoreInterface defines the full set of store operations. The concrete
// *Store type implements this interface.
type StoreInterface interface {
	Close() error

	// --- Agents / Membership ---
	RegisterAgent(id string) (*model.Agent, error)
	GetAgent(id string) (*model.Agent, error)
	UpdateAgentHeartbeat(id string, configVersion int64, status model.AgentStatus, job string, fuel int) error
	ListAgents() ([]model.Agent, error)
	ListLiveAgents(timeout time.Duration) ([]model.Agent, error)

	// --- Recall ---
	SetRecall(active bool) error
	GetRecall() (bool, error)

	// --- Bus ---
	PublishMessage(quarryID, sender string, kind model.BusMessageKind, target, body string) (*model.BusMessage, error)
	ListMessagesSince(quarryID string, sinceID int64, limit int) ([]model.BusMessage, error)
	ListMessagesForAgent(quarryID, agentID string, sinceID int64, limit int) ([]model.BusMessage, error)
	ListMessagesByKind(quarryID string, kind model.BusMessageKind, sinceID int64, limit int) ([]model.BusMessage, error)
	GetCursor(agentID string) int64
	SetCursor(agentID string, sinceID int64) error
	MaxMessageID() int64

	// --- Journal ---
	BeginJournalEntry(kind, payload string) (int64, error)
	CompleteJournalEntry(id int64) error
	ListPendingJournalEntries() ([]model.JournalEntry, error)
	QuarantineJournalEntry(e model.JournalEntry, reason string) error
	CountPendingJournalEntries() int64

	// --- Tunnel plan ---
	InitTunnelPlan(tunnels []model.Tunnel) error
	ListTunnels() ([]model.Tunnel, error)
	GetTunnel(id string) (*model.Tunnel, error)
	ClaimFirstIdleTunnel(agentID string) (*model.Tunnel, error)
	UpdateTunnelProgress(id string, progress int, state model.TunnelState) error
	ReleaseTunnel(id string, finalState model.TunnelState) error
	ReconcileTunnel(id, candidateAgent string, candidateProgress int) (bool, error)

	// --- Ore registry ---
	UpsertOreObservation(x, y, z int, block string) (bool, error)
	MarkOreMined(x, y, z int, block string) error
	MarkPositionsMined(positions [][3]int) error
	ListOreByStatus(status model.OreStatus) ([]model.OreObservation, error)

	// --- Job ledger ---
	AppendJobRecord(j model.Job) error
	LoadJobLedger() ([]model.Job, error)

	// --- Config ---
	SaveConfig(cfg model.QuarryConfig) error
	LoadConfig() (*model.QuarryConfig, error)
}
