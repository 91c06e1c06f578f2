package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/bus"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// Manager coordinates the local configuration replica with the shared
// bus: fetching from peers when no replica exists, answering other
// agents' requests, and rebroadcasting on change.
type Manager struct {
	store store.StoreInterface
	bus   *bus.Bus
}

// NewManager returns a Manager backed by s and b.
func NewManager(s store.StoreInterface, b *bus.Bus) *Manager {
	return &Manager{store: s, bus: b}
}

// Load returns the local configuration replica, or nil if none has
// been set yet.
func (m *Manager) Load() (*model.QuarryConfig, error) {
	cfg, err := m.store.LoadConfig()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("config load: %w", err)
	}
	return cfg, nil
}

// RequestFromPeers broadcasts config_request and waits up to timeout
// for the next delivery of messages to this agent, persisting and
// returning the first config_response in it. Returns nil, nil if
// nothing arrives in time or that delivery holds no config_response;
// the delivery's other messages are consumed and not returned.
func (m *Manager) RequestFromPeers(ctx context.Context, timeout time.Duration) (*model.QuarryConfig, error) {
	if _, err := m.bus.Send(model.MsgConfigRequest, "", ""); err != nil {
		return nil, fmt.Errorf("request config: %w", err)
	}
	msgs, err := m.bus.Receive(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("request config: %w", err)
	}
	for _, msg := range msgs {
		if msg.Kind != model.MsgConfigResponse {
			continue
		}
		var cfg model.QuarryConfig
		if err := json.Unmarshal([]byte(msg.Body), &cfg); err != nil {
			return nil, fmt.Errorf("request config: parse response: %w", err)
		}
		if err := m.store.SaveConfig(cfg); err != nil {
			return nil, fmt.Errorf("request config: save: %w", err)
		}
		return &cfg, nil
	}
	return nil, nil
}

// Publish persists cfg locally and rebroadcasts it as config_update,
// used after the wizard runs and whenever the configuration changes.
func (m *Manager) Publish(cfg model.QuarryConfig) error {
	if err := m.store.SaveConfig(cfg); err != nil {
		return fmt.Errorf("publish config: save: %w", err)
	}
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("publish config: marshal: %w", err)
	}
	if _, err := m.bus.Send(model.MsgConfigUpdate, "", string(blob)); err != nil {
		return fmt.Errorf("publish config: broadcast: %w", err)
	}
	return nil
}

// RespondToRequests answers any config_request messages in msgs with
// the local configuration, directed back to the requester.
func (m *Manager) RespondToRequests(msgs []model.BusMessage) error {
	cfg, err := m.Load()
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	blob, err := json.Marshal(*cfg)
	if err != nil {
		return fmt.Errorf("respond to config requests: marshal: %w", err)
	}
	for _, msg := range msgs {
		if msg.Kind != model.MsgConfigRequest {
			continue
		}
		if _, err := m.bus.Send(model.MsgConfigResponse, msg.Sender, string(blob)); err != nil {
			return fmt.Errorf("respond to config requests: %w", err)
		}
	}
	return nil
}
