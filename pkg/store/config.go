// config.go persists the quarry configuration blob as JSON, matching
// spec.md §6's "config.<quarryId>" file and the teacher's encoding/json
// wire-format convention.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
)

// SaveConfig writes (or overwrites) the single quarry configuration row.
func (s *Store) SaveConfig(cfg model.QuarryConfig) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO quarry_config (id, version, blob) VALUES (1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET version = excluded.version, blob = excluded.blob`,
			cfg.ConfigVersion, string(blob),
		)
		return err
	})
}

// LoadConfig returns the quarry's current configuration, or
// (nil, nil) if none has been set yet — the caller uses a nil config to
// decide whether to run the interactive configuration wizard.
func (s *Store) LoadConfig() (*model.QuarryConfig, error) {
	var blob string
	if err := s.db.QueryRow(`SELECT blob FROM quarry_config WHERE id = 1`).Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var cfg model.QuarryConfig
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
