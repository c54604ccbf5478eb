package types

import "time"

// ActionFilter for querying the ledger
type ActionFilter struct {
	Status     ActionStatus `json:"status,omitempty"`
	Target     string       `json:"target,omitempty"`
	ActionType string       `json:"action_type,omitempty"`
	CreatedBy  string       `json:"created_by,omitempty"`
	Since      time.Time    `json:"since,omitempty"`
	Until      time.Time    `json:"until,omitempty"`
}

// Matches checks if an action satisfies all filter criteria
func (f ActionFilter) Matches(a *Action) bool {
	return f.matchesBasicFields(a) && f.matchesTimeRange(a)
}

func (f ActionFilter) matchesBasicFields(a *Action) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Target != "" && a.Target != f.Target {
		return false
	}
	if f.ActionType != "" && a.ActionType != f.ActionType {
		return false
	}
	if f.CreatedBy != "" && a.CreatedBy != f.CreatedBy {
		return false
	}
	return true
}

func (f ActionFilter) matchesTimeRange(a *Action) bool {
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && a.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
