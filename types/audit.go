package types

import "time"

// AuditEntry records a single state transition. Entries are append-only;
// the sequence for one action id is that action's complete history.
type AuditEntry struct {
	Sequence       int64        `json:"sequence"`
	ActionID       string       `json:"action_id"`
	PreviousStatus ActionStatus `json:"previous_status"`
	NewStatus      ActionStatus `json:"new_status"`
	Actor          string       `json:"actor"`
	Timestamp      time.Time    `json:"timestamp"`
	Details        string       `json:"details,omitempty"`
}
