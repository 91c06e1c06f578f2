// Package errs defines the sentinel error kinds used across AutoMine's
// coordination components, per the error handling design in the spec.
package errs

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", Kind) at the call
// site so errors.Is still matches after context is added.
var (
	// ErrOutOfBounds is fatal for a step: the target pose leaves the
	// bounding box. Never retried.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrBlocked means a movement primitive could not clear an
	// obstruction within the bounded retry count.
	ErrBlocked = errors.New("blocked")

	// ErrFuelExhausted means the actuator has no fuel left for the
	// next movement step.
	ErrFuelExhausted = errors.New("fuel exhausted")

	// ErrChestEmpty means a refuel attempt found no usable fuel item.
	ErrChestEmpty = errors.New("chest empty")

	// ErrUnverified means a journal replay verifier returned false;
	// the entry remains pending and progress halts past that step.
	ErrUnverified = errors.New("unverified")

	// ErrConfigDrift means a peer is running a newer configVersion.
	ErrConfigDrift = errors.New("config drift")

	// ErrPeerUnreachable means a directed message could not be
	// delivered (bus write failed or timed out).
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrJournalCorrupt means a pending journal entry's payload could
	// not be parsed; it must be quarantined.
	ErrJournalCorrupt = errors.New("journal corrupt")
)
