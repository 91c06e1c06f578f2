package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	store    *store.Store
	quarryID string
	agentID  string // default agent from AUTOMINE_AGENT
}

// newApp opens the quarry database and resolves the default agent
// identity. Creates the containing directory if using the default path.
func newApp() (*app, error) {
	quarryID := envOr("AUTOMINE_QUARRY", defaultQuarry)
	dbPath := envOr("AUTOMINE_DB", defaultDBFor(quarryID))
	if dbPath == defaultDBFor(quarryID) {
		if err := os.MkdirAll(defaultDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", defaultDir, err)
		}
	}
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", dbPath, err)
	}
	return &app{
		store:    s,
		quarryID: quarryID,
		agentID:  envOr("AUTOMINE_AGENT", ""),
	}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// resolveAgent returns the agent ID from the flag (if non-empty), falling
// back to the AUTOMINE_AGENT environment variable.
func (a *app) resolveAgent(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if a.agentID != "" {
		return a.agentID, nil
	}
	return "", fmt.Errorf("no agent ID: pass --agent or set AUTOMINE_AGENT")
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
