package types

import (
	"fmt"
	"time"
)

// Action types - each tag maps to exactly one registered effector
const (
	ActionIsolateHost    = "isolate-host"
	ActionBlockIP        = "block-ip"
	ActionBlockDomain    = "block-domain"
	ActionDisableAccount = "disable-account"
	ActionQuarantineFile = "quarantine-file"
	ActionRevokeSession  = "revoke-session"
)

// ActionStatus tracks an action through its lifecycle
type ActionStatus string

const (
	StatusPending      ActionStatus = "pending"
	StatusAutoApproved ActionStatus = "auto_approved"
	StatusApproved     ActionStatus = "approved"
	StatusRejected     ActionStatus = "rejected"
	StatusMonitorOnly  ActionStatus = "monitor_only"
	StatusDispatching  ActionStatus = "dispatching"
	StatusExecuted     ActionStatus = "executed"
	StatusFailed       ActionStatus = "failed"
	StatusExpired      ActionStatus = "expired"
)

// Action represents a proposed or decided automated response
type Action struct {
	ID               string       `json:"id"`
	ActionType       string       `json:"action_type"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Target           string       `json:"target"`
	Confidence       float64      `json:"confidence"`
	Reason           string       `json:"reason"`
	Evidence         []string     `json:"evidence"`
	CreatedBy        string       `json:"created_by"`
	Status           ActionStatus `json:"status"`
	FlaggedForReview bool         `json:"flagged_for_review,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	DecidedAt        time.Time    `json:"decided_at,omitempty"`
	DecidedBy        string       `json:"decided_by,omitempty"`
	ExecutedAt       time.Time    `json:"executed_at,omitempty"`
	ExecutionResult  string       `json:"execution_result,omitempty"`
}

// Validate ensures the action has required fields
func (a *Action) Validate() error {
	if a.ActionType == "" {
		return fmt.Errorf("%w: action type cannot be empty", ErrValidation)
	}
	if a.Target == "" {
		return fmt.Errorf("%w: action target cannot be empty", ErrValidation)
	}
	if a.Reason == "" {
		return fmt.Errorf("%w: action reason cannot be empty", ErrValidation)
	}
	if len(a.Evidence) == 0 {
		return fmt.Errorf("%w: action requires at least one evidence reference", ErrValidation)
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("%w: confidence %.2f outside [0.0, 1.0]", ErrValidation, a.Confidence)
	}
	if a.CreatedBy == "" {
		return fmt.Errorf("%w: action creator cannot be empty", ErrValidation)
	}
	return nil
}

// IsTerminal checks if no further transitions are possible
func (a *Action) IsTerminal() bool {
	switch a.Status {
	case StatusRejected, StatusMonitorOnly, StatusExecuted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Dispatchable checks if the action is eligible for execution.
// An auto-approved action held for review must be released first.
func (a *Action) Dispatchable() bool {
	if a.Status == StatusApproved {
		return true
	}
	return a.Status == StatusAutoApproved && !a.FlaggedForReview
}

// Clone returns a copy safe to hand outside the ledger
func (a *Action) Clone() Action {
	cp := *a
	cp.Evidence = append([]string(nil), a.Evidence...)
	return cp
}
