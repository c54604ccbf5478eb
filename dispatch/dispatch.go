package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelops/arbiter/effector"
	"github.com/sentinelops/arbiter/ledger"
	"github.com/sentinelops/arbiter/telemetry"
	"github.com/sentinelops/arbiter/types"
)

// ActorDispatcher is recorded as the actor on dispatch transitions
const ActorDispatcher = "dispatcher"

// Engine invokes the external effector exactly once per action and
// records the outcome. The exactly-once guarantee comes from the ledger's
// CAS into the transient dispatching status: two concurrent attempts for
// the same action id race on that CAS and only one wins. Failures are
// recorded on the action, never retried automatically; a retry is a new
// decision by a human or proposer.
type Engine struct {
	ledger   *ledger.Ledger
	registry *effector.Registry
	logger   *telemetry.Logger
	tracer   trace.Tracer
}

// NewEngine creates a dispatcher
func NewEngine(l *ledger.Ledger, r *effector.Registry) *Engine {
	return &Engine{
		ledger:   l,
		registry: r,
		logger:   telemetry.NewLogger("dispatch"),
		tracer:   otel.Tracer("dispatch"),
	}
}

// Dispatch executes an approved or auto-approved action. The returned
// action carries the terminal executed or failed status; an effector
// failure is captured in the record and not raised as an error.
func (e *Engine) Dispatch(ctx context.Context, id string) (types.Action, error) {
	ctx, span := e.tracer.Start(ctx, "dispatch.dispatch",
		trace.WithAttributes(attribute.String("action.id", id)))
	defer span.End()

	// CAS to the dispatching marker. The per-target lock is released by
	// the time this returns, so the effector call below never starves
	// other targets.
	action, err := e.ledger.BeginDispatch(id, ActorDispatcher)
	if err != nil {
		return types.Action{}, err
	}

	eff, err := e.registry.Resolve(action.ActionType)
	if err != nil {
		// No effector bound: record the failure so it is auditable
		return e.complete(ctx, action.ID, effector.Result{
			Success: false,
			Message: fmt.Sprintf("no effector: %v", err),
		})
	}

	e.logger.WithContext(ctx).Info().
		Str("action_id", action.ID).
		Str("action_type", action.ActionType).
		Str("target", action.Target).
		Str("effector", eff.Name()).
		Msg("invoking effector")

	result, err := eff.Execute(ctx, action)
	if err != nil {
		result = effector.Result{Success: false, Message: err.Error()}
	}

	return e.complete(ctx, action.ID, result)
}

// complete moves a dispatching action to its terminal status
func (e *Engine) complete(ctx context.Context, id string, result effector.Result) (types.Action, error) {
	to := types.StatusExecuted
	if !result.Success {
		to = types.StatusFailed
		e.logger.LogDispatchError(ctx, id, fmt.Errorf("%s", result.Message))
	}

	return e.ledger.Transition(id, types.StatusDispatching, to, ActorDispatcher, result.Message, func(a *types.Action) {
		a.ExecutedAt = time.Now().UTC()
		a.ExecutionResult = result.Message
	})
}

// DryRunResult reports whether an action would be dispatched
type DryRunResult struct {
	Dispatchable bool   `json:"dispatchable"`
	Effector     string `json:"effector,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// DryRun checks dispatchability without invoking the effector or
// touching the action's status.
func (e *Engine) DryRun(ctx context.Context, id string) (DryRunResult, error) {
	action, err := e.ledger.Get(id)
	if err != nil {
		return DryRunResult{}, err
	}

	if !action.Dispatchable() {
		return DryRunResult{
			Reason: fmt.Sprintf("status %s is not dispatchable", action.Status),
		}, nil
	}

	eff, err := e.registry.Resolve(action.ActionType)
	if err != nil {
		return DryRunResult{Reason: err.Error()}, nil
	}

	return DryRunResult{Dispatchable: true, Effector: eff.Name()}, nil
}
