package types

import (
	"errors"
	"testing"
	"time"
)

func validAction() Action {
	return Action{
		ID:         "act-1",
		ActionType: ActionIsolateHost,
		Title:      "Isolate compromised host",
		Target:     "host-7",
		Confidence: 0.92,
		Reason:     "EDR detected credential dumping",
		Evidence:   []string{"f-1"},
		CreatedBy:  "agent-triage",
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Action)
		wantErr bool
	}{
		{"valid", func(a *Action) {}, false},
		{"empty type", func(a *Action) { a.ActionType = "" }, true},
		{"empty target", func(a *Action) { a.Target = "" }, true},
		{"empty reason", func(a *Action) { a.Reason = "" }, true},
		{"empty evidence", func(a *Action) { a.Evidence = nil }, true},
		{"confidence too high", func(a *Action) { a.Confidence = 1.01 }, true},
		{"confidence negative", func(a *Action) { a.Confidence = -0.1 }, true},
		{"empty creator", func(a *Action) { a.CreatedBy = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAction()
			tt.mutate(&a)
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAction_IsTerminal(t *testing.T) {
	terminal := []ActionStatus{StatusRejected, StatusMonitorOnly, StatusExecuted, StatusFailed, StatusExpired}
	live := []ActionStatus{StatusPending, StatusAutoApproved, StatusApproved, StatusDispatching}

	a := validAction()
	for _, s := range terminal {
		a.Status = s
		if !a.IsTerminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range live {
		a.Status = s
		if a.IsTerminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}

func TestAction_Dispatchable(t *testing.T) {
	a := validAction()

	a.Status = StatusApproved
	if !a.Dispatchable() {
		t.Error("approved action should be dispatchable")
	}

	a.Status = StatusAutoApproved
	if !a.Dispatchable() {
		t.Error("auto-approved action should be dispatchable")
	}

	a.FlaggedForReview = true
	if a.Dispatchable() {
		t.Error("flagged auto-approved action should not be dispatchable")
	}

	a.FlaggedForReview = false
	a.Status = StatusPending
	if a.Dispatchable() {
		t.Error("pending action should not be dispatchable")
	}
}

func TestAction_Clone(t *testing.T) {
	a := validAction()
	cp := a.Clone()

	cp.Evidence[0] = "mutated"
	if a.Evidence[0] == "mutated" {
		t.Error("clone shares evidence slice with original")
	}
}

func TestActionFilter_Matches(t *testing.T) {
	now := time.Now()
	a := validAction()
	a.CreatedAt = now

	tests := []struct {
		name   string
		filter ActionFilter
		want   bool
	}{
		{"empty filter", ActionFilter{}, true},
		{"status match", ActionFilter{Status: StatusPending}, true},
		{"status mismatch", ActionFilter{Status: StatusExecuted}, false},
		{"target match", ActionFilter{Target: "host-7"}, true},
		{"target mismatch", ActionFilter{Target: "host-8"}, false},
		{"creator match", ActionFilter{CreatedBy: "agent-triage"}, true},
		{"type mismatch", ActionFilter{ActionType: ActionBlockIP}, false},
		{"since before creation", ActionFilter{Since: now.Add(-time.Hour)}, true},
		{"since after creation", ActionFilter{Since: now.Add(time.Hour)}, false},
		{"until after creation", ActionFilter{Until: now.Add(time.Hour)}, true},
		{"until before creation", ActionFilter{Until: now.Add(-time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&a); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
