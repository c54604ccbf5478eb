package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelops/arbiter/audit"
	"github.com/sentinelops/arbiter/correlate"
	"github.com/sentinelops/arbiter/dispatch"
	"github.com/sentinelops/arbiter/ledger"
	"github.com/sentinelops/arbiter/policy"
	"github.com/sentinelops/arbiter/telemetry"
	"github.com/sentinelops/arbiter/types"
)

// ActorPolicy is recorded as the actor on policy-decided transitions
const ActorPolicy = "policy"

// DefaultPendingHorizon is how long a pending action waits for a human
// before it expires.
const DefaultPendingHorizon = 24 * time.Hour

// Service is the review queue: the surface through which proposers create
// actions and humans decide on pending ones.
type Service struct {
	ledger     *ledger.Ledger
	trail      *audit.Trail
	evaluator  *policy.Evaluator
	dispatcher *dispatch.Engine
	correlator *correlate.Engine
	horizon    time.Duration

	logger  *telemetry.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// Options configure the service
type Options struct {
	PendingHorizon time.Duration
}

// NewService wires the review queue together
func NewService(
	l *ledger.Ledger,
	trail *audit.Trail,
	evaluator *policy.Evaluator,
	dispatcher *dispatch.Engine,
	correlator *correlate.Engine,
	opts Options,
) (*Service, error) {
	horizon := opts.PendingHorizon
	if horizon <= 0 {
		horizon = DefaultPendingHorizon
	}

	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Service{
		ledger:     l,
		trail:      trail,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		correlator: correlator,
		horizon:    horizon,
		logger:     telemetry.NewLogger("engine"),
		tracer:     otel.Tracer("engine"),
		metrics:    metrics,
	}, nil
}

// CreateActionRequest carries a proposed action from any proposer
type CreateActionRequest struct {
	ActionType  string   `json:"action_type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Target      string   `json:"target"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	Evidence    []string `json:"evidence"`
	CreatedBy   string   `json:"created_by"`
}

// CreateAction validates the proposal, classifies it through the
// confidence policy, persists it, and dispatches immediately when the
// disposition calls for it.
func (s *Service) CreateAction(ctx context.Context, req CreateActionRequest) (types.Action, error) {
	ctx, span := s.tracer.Start(ctx, "engine.create_action",
		trace.WithAttributes(
			attribute.String("action.type", req.ActionType),
			attribute.String("action.target", req.Target),
			attribute.Float64("action.confidence", req.Confidence),
		))
	defer span.End()

	disposition := s.evaluator.Evaluate(req.Confidence)

	now := time.Now().UTC()
	action := types.Action{
		ID:               uuid.NewString(),
		ActionType:       req.ActionType,
		Title:            req.Title,
		Description:      req.Description,
		Target:           req.Target,
		Confidence:       req.Confidence,
		Reason:           req.Reason,
		Evidence:         req.Evidence,
		CreatedBy:        req.CreatedBy,
		Status:           disposition.Status,
		FlaggedForReview: disposition.FlaggedForReview,
		CreatedAt:        now,
	}

	// Policy-decided statuses carry the decision metadata up front
	if disposition.Status != types.StatusPending {
		action.DecidedAt = now
		action.DecidedBy = ActorPolicy
	}

	details := fmt.Sprintf("confidence %.2f", req.Confidence)
	if err := s.ledger.Create(action, ActorPolicy, details); err != nil {
		return types.Action{}, err
	}

	s.metrics.RecordCreated(ctx, string(action.Status))
	s.logger.LogTransition(ctx, action.ID, "", string(action.Status), ActorPolicy)

	if disposition.ExecuteImmediately {
		return s.dispatchNow(ctx, action.ID)
	}

	return action, nil
}

// CorrelateRequest carries raw signals for scoring before creation
type CorrelateRequest struct {
	ActionType  string         `json:"action_type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Target      string         `json:"target"`
	Reason      string         `json:"reason"`
	Signals     []types.Signal `json:"signals"`
	CreatedBy   string         `json:"created_by"`
}

// CorrelateAndCreateAction scores the signals and creates an action from
// the derived confidence and evidence. Zero relevant signals means no
// actionable evidence, and creation is refused.
func (s *Service) CorrelateAndCreateAction(ctx context.Context, req CorrelateRequest) (types.Action, error) {
	ctx, span := s.tracer.Start(ctx, "engine.correlate_and_create",
		trace.WithAttributes(attribute.String("action.target", req.Target)))
	defer span.End()

	result, err := s.correlator.Score(ctx, req.Target, req.Signals)
	if err != nil {
		return types.Action{}, err
	}
	if len(result.Evidence) == 0 {
		return types.Action{}, fmt.Errorf("%w: no signals relevant to target %s", types.ErrNoEvidence, req.Target)
	}

	return s.CreateAction(ctx, CreateActionRequest{
		ActionType:  req.ActionType,
		Title:       req.Title,
		Description: req.Description,
		Target:      req.Target,
		Confidence:  result.Confidence,
		Reason:      req.Reason,
		Evidence:    result.Evidence,
		CreatedBy:   req.CreatedBy,
	})
}

// ApproveAction moves a pending action to approved. Any other starting
// status is a state conflict; approval does not dispatch by itself.
func (s *Service) ApproveAction(ctx context.Context, id, approver, notes string) (types.Action, error) {
	action, err := s.ledger.Transition(id, types.StatusPending, types.StatusApproved, approver, notes, func(a *types.Action) {
		a.DecidedAt = time.Now().UTC()
		a.DecidedBy = approver
	})
	if err != nil {
		return types.Action{}, err
	}

	s.metrics.RecordDecision(ctx, "approved")
	s.logger.LogTransition(ctx, id, string(types.StatusPending), string(types.StatusApproved), approver)
	return action, nil
}

// RejectAction moves a pending action to rejected
func (s *Service) RejectAction(ctx context.Context, id, approver, reason string) (types.Action, error) {
	action, err := s.ledger.Transition(id, types.StatusPending, types.StatusRejected, approver, reason, func(a *types.Action) {
		a.DecidedAt = time.Now().UTC()
		a.DecidedBy = approver
	})
	if err != nil {
		return types.Action{}, err
	}

	s.metrics.RecordDecision(ctx, "rejected")
	s.logger.LogTransition(ctx, id, string(types.StatusPending), string(types.StatusRejected), approver)
	return action, nil
}

// ReleaseAction clears the review hold on an auto-approved action and
// dispatches it.
func (s *Service) ReleaseAction(ctx context.Context, id, reviewer, notes string) (types.Action, error) {
	current, err := s.ledger.Get(id)
	if err != nil {
		return types.Action{}, err
	}
	if current.Status != types.StatusAutoApproved || !current.FlaggedForReview {
		return types.Action{}, fmt.Errorf("%w: action %s is not held for review", types.ErrStateConflict, id)
	}

	_, err = s.ledger.Transition(id, types.StatusAutoApproved, types.StatusAutoApproved, reviewer, notes, func(a *types.Action) {
		a.FlaggedForReview = false
		a.DecidedAt = time.Now().UTC()
		a.DecidedBy = reviewer
	})
	if err != nil {
		return types.Action{}, err
	}

	return s.dispatchNow(ctx, id)
}

// DispatchAction executes an approved action through the dispatcher
func (s *Service) DispatchAction(ctx context.Context, id string) (types.Action, error) {
	return s.dispatchNow(ctx, id)
}

// dispatchNow runs the dispatcher and records metrics for the outcome
func (s *Service) dispatchNow(ctx context.Context, id string) (types.Action, error) {
	start := time.Now()
	action, err := s.dispatcher.Dispatch(ctx, id)
	if err != nil {
		return types.Action{}, err
	}

	s.metrics.RecordDispatch(ctx, string(action.Status), time.Since(start))
	return action, nil
}

// GetAction returns a snapshot of one action
func (s *Service) GetAction(ctx context.Context, id string) (types.Action, error) {
	return s.ledger.Get(id)
}

// ListActions returns snapshots matching the filter
func (s *Service) ListActions(ctx context.Context, filter types.ActionFilter) ([]types.Action, error) {
	return s.ledger.List(filter)
}

// ActionHistory returns the full audit history for one action
func (s *Service) ActionHistory(ctx context.Context, id string) ([]types.AuditEntry, error) {
	if _, err := s.ledger.Get(id); err != nil {
		return nil, err
	}
	return s.trail.History(id)
}
