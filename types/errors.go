package types

import "errors"

// Error taxonomy for the approval engine. Callers branch with errors.Is.
var (
	// ErrValidation covers malformed input: empty evidence or reason,
	// confidence outside [0,1]. Never persisted.
	ErrValidation = errors.New("validation error")

	// ErrStateConflict signals a transition attempted from a status that
	// does not permit it. The ledger is left unchanged.
	ErrStateConflict = errors.New("state conflict")

	// ErrNotFound signals an unknown action id.
	ErrNotFound = errors.New("action not found")

	// ErrPolicyConfig signals invalid threshold configuration. Fatal at
	// startup, never surfaced per request.
	ErrPolicyConfig = errors.New("invalid policy configuration")

	// ErrNoEvidence signals correlation produced zero relevant signals;
	// action creation from that path is refused.
	ErrNoEvidence = errors.New("no actionable evidence")
)
