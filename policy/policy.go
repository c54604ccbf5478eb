package policy

import (
	"fmt"

	"github.com/sentinelops/arbiter/types"
)

// Default thresholds for the confidence bands
const (
	DefaultAutoExecute = 0.90
	DefaultAutoApprove = 0.85
	DefaultManual      = 0.70
)

// Thresholds configure the confidence-to-disposition mapping. Ordering
// AutoExecute >= AutoApprove >= Manual is enforced at configuration time;
// a violation prevents the engine from starting.
type Thresholds struct {
	AutoExecute float64 `yaml:"auto_execute" json:"auto_execute"`
	AutoApprove float64 `yaml:"auto_approve" json:"auto_approve"`
	Manual      float64 `yaml:"manual" json:"manual"`

	// AutoExecuteFlagged dispatches the flagged-for-review band
	// immediately instead of holding it for release.
	AutoExecuteFlagged bool `yaml:"auto_execute_flagged" json:"auto_execute_flagged"`
}

// DefaultThresholds returns the standard confidence bands
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoExecute: DefaultAutoExecute,
		AutoApprove: DefaultAutoApprove,
		Manual:      DefaultManual,
	}
}

// Validate enforces threshold ordering and range
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"auto_execute": t.AutoExecute,
		"auto_approve": t.AutoApprove,
		"manual":       t.Manual,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%w: %s threshold %.2f outside [0.0, 1.0]", types.ErrPolicyConfig, name, v)
		}
	}
	if t.AutoExecute < t.AutoApprove {
		return fmt.Errorf("%w: auto_execute %.2f below auto_approve %.2f", types.ErrPolicyConfig, t.AutoExecute, t.AutoApprove)
	}
	if t.AutoApprove < t.Manual {
		return fmt.Errorf("%w: auto_approve %.2f below manual %.2f", types.ErrPolicyConfig, t.AutoApprove, t.Manual)
	}
	return nil
}

// Disposition is the policy's classification of a proposed action
type Disposition struct {
	Status             types.ActionStatus `json:"status"`
	FlaggedForReview   bool               `json:"flagged_for_review"`
	ExecuteImmediately bool               `json:"execute_immediately"`
}

// Evaluator maps a confidence score to a disposition. Pure: no state,
// no side effects, fully determined by the validated thresholds.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator creates an evaluator, rejecting malformed thresholds
func NewEvaluator(t Thresholds) (*Evaluator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{thresholds: t}, nil
}

// Thresholds returns the configured bands
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate classifies a confidence score. Bands are inclusive on their
// lower bound. Below the manual threshold an action is recorded for audit
// only and is never executable, regardless of later human input.
func (e *Evaluator) Evaluate(confidence float64) Disposition {
	t := e.thresholds

	switch {
	case confidence >= t.AutoExecute:
		return Disposition{
			Status:             types.StatusAutoApproved,
			ExecuteImmediately: true,
		}
	case confidence >= t.AutoApprove:
		return Disposition{
			Status:             types.StatusAutoApproved,
			FlaggedForReview:   !t.AutoExecuteFlagged,
			ExecuteImmediately: t.AutoExecuteFlagged,
		}
	case confidence >= t.Manual:
		return Disposition{Status: types.StatusPending}
	default:
		return Disposition{Status: types.StatusMonitorOnly}
	}
}
