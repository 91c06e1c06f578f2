// Package store manages all SQLite persistence for an AutoMine quarry.
//
// SQLite in WAL mode serves as the broadcast medium and the durable record
// of every component's state: instead of a network message bus, agents
// read and write one shared database file per quarry. The database IS the
// communication channel (bus_messages), the journal (journal_entries), the
// shared plan (tunnels, ore_observations), the job ledger (job_ledger),
// and the membership table (agents) — the four persisted files named in
// spec.md §6 collapse into one SQLite schema.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/DannyDoesGraphics/auto-mine/pkg/model"

	_ "modernc.org/sqlite"
)

// Store manages all SQLite operations with WAL mode for concurrent,
// crash-consistent access from every agent sharing a quarry.
type Store struct {
	db *sql.DB
}

var _ StoreInterface = (*Store)(nil)

// New opens (or creates) the quarry's SQLite database and initializes the
// schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention wraps retryOp from retry.go with the default config.
// All store write operations should use this to handle transient SQLite
// errors (BUSY, LOCKED, IOERR_SHORT_READ) under concurrent agent access.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id             TEXT PRIMARY KEY,
		config_version INTEGER NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'ok',
		job            TEXT NOT NULL DEFAULT '',
		fuel           INTEGER NOT NULL DEFAULT 0,
		seq            INTEGER NOT NULL DEFAULT 0,
		registered     TEXT NOT NULL,
		last_seen      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cursors (
		agent_id  TEXT PRIMARY KEY REFERENCES agents(id),
		since_id  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS bus_messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		quarry_id  TEXT NOT NULL,
		sender     TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		target     TEXT,
		body       TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bus_target ON bus_messages(target, id);
	CREATE INDEX IF NOT EXISTS idx_bus_kind ON bus_messages(kind, id);
	CREATE INDEX IF NOT EXISTS idx_bus_sender ON bus_messages(sender, seq);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		payload    TEXT NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_quarantine (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		original_id    INTEGER NOT NULL,
		kind           TEXT NOT NULL,
		payload        TEXT NOT NULL,
		reason         TEXT NOT NULL,
		quarantined_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tunnels (
		id             TEXT PRIMARY KEY,
		origin_x       INTEGER NOT NULL,
		origin_y       INTEGER NOT NULL,
		origin_z       INTEGER NOT NULL,
		length         INTEGER NOT NULL,
		progress       INTEGER NOT NULL DEFAULT 0,
		state          TEXT NOT NULL DEFAULT 'idle',
		claimed_by     TEXT NOT NULL DEFAULT '',
		config_version INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tunnels_state ON tunnels(state);

	CREATE TABLE IF NOT EXISTS ore_observations (
		x      INTEGER NOT NULL,
		y      INTEGER NOT NULL,
		z      INTEGER NOT NULL,
		block  TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		PRIMARY KEY (x, y, z, block)
	);
	CREATE INDEX IF NOT EXISTS idx_ore_status ON ore_observations(status);

	CREATE TABLE IF NOT EXISTS job_ledger (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id     TEXT NOT NULL,
		type       INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_ledger_job ON job_ledger(job_id, seq);

	CREATE TABLE IF NOT EXISTS quarry_config (
		id      INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		blob    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recall_state (
		id     INTEGER PRIMARY KEY CHECK (id = 1),
		active INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Agents / Membership
// ---------------------------------------------------------------------------

// RegisterAgent creates or updates an agent. Idempotent via ON CONFLICT.
func (s *Store) RegisterAgent(id string) (*model.Agent, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO agents (id, config_version, status, job, fuel, seq, registered, last_seen)
			 VALUES (?, 0, 'ok', '', 0, 0, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
			id, now, now,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetAgent(id)
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(id string) (*model.Agent, error) {
	row := s.db.QueryRow(
		`SELECT id, config_version, status, job, fuel, registered, last_seen
		 FROM agents WHERE id = ?`, id,
	)
	return scanAgent(row)
}

// UpdateAgentHeartbeat persists the agent's heartbeat fields (status, job,
// fuel, configVersion) and bumps last_seen. See spec.md §4.9.
func (s *Store) UpdateAgentHeartbeat(id string, configVersion int64, status model.AgentStatus, job string, fuel int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`UPDATE agents SET config_version = ?, status = ?, job = ?, fuel = ?, last_seen = ? WHERE id = ?`,
			configVersion, string(status), job, fuel, now, id,
		)
		return err
	})
}

// ListAgents returns all registered agents ordered by ID.
func (s *Store) ListAgents() ([]model.Agent, error) {
	rows, err := s.db.Query(
		`SELECT id, config_version, status, job, fuel, registered, last_seen FROM agents ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		var statusStr, regStr, lsStr string
		if err := rows.Scan(&a.ID, &a.ConfigVersion, &statusStr, &a.Job, &a.Fuel, &regStr, &lsStr); err != nil {
			return nil, err
		}
		a.Status = model.AgentStatus(statusStr)
		var parseErr error
		a.Registered, parseErr = time.Parse(time.RFC3339Nano, regStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse registered time for agent %s: %w", a.ID, parseErr)
		}
		a.LastSeen, parseErr = time.Parse(time.RFC3339Nano, lsStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse last_seen time for agent %s: %w", a.ID, parseErr)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListLiveAgents returns agents whose last_seen is within timeout of now.
// An agent is "live" iff now - lastSeen <= heartbeatTimeout, per spec.md §3.
func (s *Store) ListLiveAgents(timeout time.Duration) ([]model.Agent, error) {
	all, err := s.ListAgents()
	if err != nil {
		return nil, err
	}
	var live []model.Agent
	now := time.Now().UTC()
	for _, a := range all {
		if now.Sub(a.LastSeen) <= timeout {
			live = append(live, a)
		}
	}
	return live, nil
}

func scanAgent(row *sql.Row) (*model.Agent, error) {
	var a model.Agent
	var statusStr, regStr, lsStr string
	if err := row.Scan(&a.ID, &a.ConfigVersion, &statusStr, &a.Job, &a.Fuel, &regStr, &lsStr); err != nil {
		return nil, err
	}
	a.Status = model.AgentStatus(statusStr)
	var parseErr error
	a.Registered, parseErr = time.Parse(time.RFC3339Nano, regStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse registered time for agent %s: %w", a.ID, parseErr)
	}
	a.LastSeen, parseErr = time.Parse(time.RFC3339Nano, lsStr)
	if parseErr != nil {
		return nil, fmt.Errorf("parse last_seen time for agent %s: %w", a.ID, parseErr)
	}
	return &a, nil
}

// ---------------------------------------------------------------------------
// Recall
// ---------------------------------------------------------------------------

// SetRecall sets the fleet-wide recall flag.
func (s *Store) SetRecall(active bool) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO recall_state (id, active) VALUES (1, ?)
			 ON CONFLICT(id) DO UPDATE SET active = excluded.active`,
			boolToInt(active),
		)
		return err
	})
}

// GetRecall returns the fleet-wide recall flag (false if unset).
func (s *Store) GetRecall() (bool, error) {
	var active int
	err := s.db.QueryRow(`SELECT active FROM recall_state WHERE id = 1`).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active != 0, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
