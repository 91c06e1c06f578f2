// Package journal implements the durable "ACID-verify" log described in
// spec.md §4.1: every non-idempotent side-effect is paired with a
// verifier that can decide, after a crash, whether the effect took
// place. Pending entries live in the store's journal_entries table;
// Begin/Complete bracket the native action, and Resume replays every
// pending entry through its registered verifier on start-up.
package journal

import (
	"encoding/json"
	"fmt"

	"github.com/DannyDoesGraphics/auto-mine/pkg/errs"
	"github.com/DannyDoesGraphics/auto-mine/pkg/model"
	"github.com/DannyDoesGraphics/auto-mine/pkg/store"
)

// Verifier decides, from a journal entry's raw payload, whether the
// intended effect has taken place. It must be deterministic: either it
// observes the world directly, or it re-attempts the action idempotently
// and reports the result.
type Verifier func(payload []byte) (bool, error)

// Outcome reports what Resume did with one pending entry.
type Outcome struct {
	Entry    model.JournalEntry
	Verified bool
	Err      error
}

// Journal brackets non-idempotent actions with a persisted pending
// record and replays them after a crash via registered verifiers.
type Journal struct {
	store     store.StoreInterface
	verifiers map[string]Verifier
}

// New returns a Journal backed by s. Verifiers must be registered with
// RegisterVerifier before Resume is called.
func New(s store.StoreInterface) *Journal {
	return &Journal{store: s, verifiers: make(map[string]Verifier)}
}

// RegisterVerifier associates a verifier with a journal entry kind. The
// required kinds per spec.md §4.1 are: move_forward, move_up, move_down,
// turn_left, turn_right, dig_forward, dig_up, dig_down, claim_tunnel,
// release_tunnel, deposit, refuel, and broadcast(seq) — registered by
// pkg/movement, pkg/tunnel, pkg/fuel, and pkg/bus respectively at worker
// start-up.
func (j *Journal) RegisterVerifier(kind string, v Verifier) {
	j.verifiers[kind] = v
}

// Begin allocates a monotonic id, persists the pending entry, and
// returns the id. The caller must invoke the native action next, then
// Complete on success, per the ordering rule in spec.md §4.1.
func (j *Journal) Begin(kind string, payload interface{}) (int64, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("journal begin %s: marshal payload: %w", kind, err)
	}
	return j.store.BeginJournalEntry(kind, string(blob))
}

// Complete removes a pending entry once its effect is known to have
// succeeded.
func (j *Journal) Complete(id int64) error {
	return j.store.CompleteJournalEntry(id)
}

// Resume iterates every pending entry and invokes its registered
// verifier. Entries that verify true are completed (removed); entries
// whose kind has no registered verifier, or whose payload fails to
// parse, are quarantined as JournalCorrupt. Entries that verify false
// remain pending and are reported as Unverified so the worker halts
// progress past that step.
func (j *Journal) Resume() ([]Outcome, error) {
	pending, err := j.store.ListPendingJournalEntries()
	if err != nil {
		return nil, fmt.Errorf("journal resume: list pending: %w", err)
	}

	outcomes := make([]Outcome, 0, len(pending))
	for _, e := range pending {
		verifier, ok := j.verifiers[e.Kind]
		if !ok {
			if qerr := j.store.QuarantineJournalEntry(e, "no verifier registered for kind "+e.Kind); qerr != nil {
				return outcomes, fmt.Errorf("journal resume: quarantine %d: %w", e.ID, qerr)
			}
			outcomes = append(outcomes, Outcome{Entry: e, Verified: false, Err: errs.ErrJournalCorrupt})
			continue
		}

		ok, verifyErr := verifier([]byte(e.Payload))
		if verifyErr != nil {
			if qerr := j.store.QuarantineJournalEntry(e, verifyErr.Error()); qerr != nil {
				return outcomes, fmt.Errorf("journal resume: quarantine %d: %w", e.ID, qerr)
			}
			outcomes = append(outcomes, Outcome{Entry: e, Verified: false, Err: fmt.Errorf("%w: %v", errs.ErrJournalCorrupt, verifyErr)})
			continue
		}

		if !ok {
			outcomes = append(outcomes, Outcome{Entry: e, Verified: false, Err: errs.ErrUnverified})
			continue
		}

		if err := j.store.CompleteJournalEntry(e.ID); err != nil {
			return outcomes, fmt.Errorf("journal resume: complete %d: %w", e.ID, err)
		}
		outcomes = append(outcomes, Outcome{Entry: e, Verified: true})
	}
	return outcomes, nil
}

// Pending reports how many entries are still awaiting verification.
func (j *Journal) Pending() int64 {
	return j.store.CountPendingJournalEntries()
}
