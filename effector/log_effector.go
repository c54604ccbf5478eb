package effector

import (
	"context"
	"fmt"

	"github.com/sentinelops/arbiter/telemetry"
	"github.com/sentinelops/arbiter/types"
)

// LogEffector records the action instead of performing it. Useful as the
// default binding for environments without real response tooling wired in.
type LogEffector struct {
	logger *telemetry.Logger
}

// NewLogEffector creates a log-only effector
func NewLogEffector() *LogEffector {
	return &LogEffector{
		logger: telemetry.NewLogger("log-effector"),
	}
}

// Name identifies the effector
func (e *LogEffector) Name() string {
	return "log-only"
}

// Execute logs the action and reports success
func (e *LogEffector) Execute(ctx context.Context, action types.Action) (Result, error) {
	e.logger.WithContext(ctx).Info().
		Str("action_id", action.ID).
		Str("action_type", action.ActionType).
		Str("target", action.Target).
		Msg("log-only effector invoked")

	return Result{
		Success: true,
		Message: fmt.Sprintf("logged %s on %s (no-op effector)", action.ActionType, action.Target),
	}, nil
}
