package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/arbiter/audit"
	"github.com/sentinelops/arbiter/correlate"
	"github.com/sentinelops/arbiter/dispatch"
	"github.com/sentinelops/arbiter/effector"
	"github.com/sentinelops/arbiter/ledger"
	"github.com/sentinelops/arbiter/policy"
	"github.com/sentinelops/arbiter/types"
)

// recordingEffector captures invocations for assertions
type recordingEffector struct {
	calls   atomic.Int64
	mu      sync.Mutex
	targets []string
}

func (r *recordingEffector) Name() string { return "recording" }

func (r *recordingEffector) Execute(ctx context.Context, action types.Action) (effector.Result, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.targets = append(r.targets, action.Target)
	r.mu.Unlock()
	return effector.Result{Success: true, Message: "done"}, nil
}

type testEnv struct {
	service  *Service
	ledger   *ledger.Ledger
	trail    *audit.Trail
	effector *recordingEffector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	trail, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = trail.Close() })

	l, err := ledger.New(t.TempDir(), trail)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	rec := &recordingEffector{}
	registry := effector.NewRegistry()
	require.NoError(t, registry.Register(types.ActionIsolateHost, rec))
	require.NoError(t, registry.Register(types.ActionBlockIP, rec))
	registry.Seal()

	evaluator, err := policy.NewEvaluator(policy.DefaultThresholds())
	require.NoError(t, err)

	service, err := NewService(
		l, trail, evaluator,
		dispatch.NewEngine(l, registry),
		correlate.NewEngine(correlate.Options{}),
		Options{PendingHorizon: 24 * time.Hour},
	)
	require.NoError(t, err)

	return &testEnv{service: service, ledger: l, trail: trail, effector: rec}
}

func createReq(confidence float64, target string) CreateActionRequest {
	return CreateActionRequest{
		ActionType: types.ActionIsolateHost,
		Title:      "Isolate compromised host",
		Target:     target,
		Confidence: confidence,
		Reason:     "credential dumping detected",
		Evidence:   []string{"f-1"},
		CreatedBy:  "agent-triage",
	}
}

// High-confidence creation auto-executes, leaving creation, dispatch
// and execution in the trail
func TestCreateAction_AutoExecute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.92, "host-7"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusExecuted, action.Status)
	assert.False(t, action.FlaggedForReview)
	assert.Equal(t, int64(1), env.effector.calls.Load())

	history, err := env.trail.History(action.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, types.StatusAutoApproved, history[0].NewStatus)
	assert.Equal(t, types.StatusDispatching, history[1].NewStatus)
	assert.Equal(t, types.StatusExecuted, history[2].NewStatus)
}

// The flagged band is approved but held; no execution until release
func TestCreateAction_FlaggedBandHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.87, "host-7"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusAutoApproved, action.Status)
	assert.True(t, action.FlaggedForReview)
	assert.Zero(t, env.effector.calls.Load())

	released, err := env.service.ReleaseAction(ctx, action.ID, "alice", "verified with host owner")
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, released.Status)
	assert.Equal(t, int64(1), env.effector.calls.Load())
}

// Mid-band creation stays pending; approve then dispatch executes it
func TestCreateAction_PendingApproveDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.82, "host-7"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, action.Status)
	assert.Zero(t, env.effector.calls.Load())

	approved, err := env.service.ApproveAction(ctx, action.ID, "alice", "confirmed malicious")
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, approved.Status)
	assert.Equal(t, "alice", approved.DecidedBy)
	assert.Zero(t, env.effector.calls.Load(), "approval alone must not execute")

	executed, err := env.service.DispatchAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusExecuted, executed.Status)
	assert.Equal(t, int64(1), env.effector.calls.Load())
}

// Sub-threshold creation is recorded for audit but never executable
func TestCreateAction_MonitorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.50, "host-7"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusMonitorOnly, action.Status)

	_, err = env.service.ApproveAction(ctx, action.ID, "alice", "")
	assert.ErrorIs(t, err, types.ErrStateConflict)

	_, err = env.service.DispatchAction(ctx, action.ID)
	assert.ErrorIs(t, err, types.ErrStateConflict)
	assert.Zero(t, env.effector.calls.Load())
}

func TestCreateAction_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateActionRequest)
	}{
		{"empty evidence", func(r *CreateActionRequest) { r.Evidence = nil }},
		{"empty reason", func(r *CreateActionRequest) { r.Reason = "" }},
		{"confidence out of range", func(r *CreateActionRequest) { r.Confidence = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createReq(0.8, "host-7")
			tt.mutate(&req)
			_, err := env.service.CreateAction(ctx, req)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	// Nothing was persisted
	all, err := env.service.ListActions(ctx, types.ActionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRejectAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.82, "host-7"))
	require.NoError(t, err)

	rejected, err := env.service.RejectAction(ctx, action.ID, "bob", "false positive")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, rejected.Status)

	// Rejecting a terminal action is a state conflict, status unchanged
	_, err = env.service.RejectAction(ctx, action.ID, "bob", "")
	assert.ErrorIs(t, err, types.ErrStateConflict)

	current, err := env.service.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, current.Status)
}

func TestRejectAction_AfterExecution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.92, "host-7"))
	require.NoError(t, err)
	require.Equal(t, types.StatusExecuted, action.Status)

	_, err = env.service.RejectAction(ctx, action.ID, "bob", "too late")
	assert.ErrorIs(t, err, types.ErrStateConflict)
}

func TestCorrelateAndCreateAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	t0 := time.Now()

	action, err := env.service.CorrelateAndCreateAction(ctx, CorrelateRequest{
		ActionType: types.ActionIsolateHost,
		Title:      "Isolate host-7",
		Target:     "host-7",
		Reason:     "correlated multi-source detection",
		CreatedBy:  "agent-triage",
		Signals: []types.Signal{
			{EvidenceID: "f-1", Source: types.SourceNetflow, Severity: 0.8, Timestamp: t0, Entities: []string{"host-7"}},
			{EvidenceID: "f-2", Source: types.SourceEndpoint, Severity: 0.75, Timestamp: t0.Add(2 * time.Minute), Entities: []string{"host-7"}},
			{EvidenceID: "f-3", Source: types.SourceThreatIntel, Severity: 0.6, Timestamp: t0.Add(5 * time.Minute), Entities: []string{"host-7"}},
		},
	})
	require.NoError(t, err)

	// Three distinct sources in one window corroborate past the
	// auto-execute threshold.
	assert.GreaterOrEqual(t, action.Confidence, 0.90)
	assert.Equal(t, types.StatusExecuted, action.Status)
	assert.Equal(t, []string{"f-1", "f-2", "f-3"}, action.Evidence)
}

func TestCorrelateAndCreateAction_NoEvidence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CorrelateAndCreateAction(ctx, CorrelateRequest{
		ActionType: types.ActionIsolateHost,
		Title:      "Isolate host-7",
		Target:     "host-7",
		Reason:     "speculative",
		CreatedBy:  "agent-triage",
		Signals: []types.Signal{
			{EvidenceID: "f-1", Source: types.SourceNetflow, Severity: 0.9, Timestamp: time.Now(), Entities: []string{"host-9"}},
		},
	})
	assert.ErrorIs(t, err, types.ErrNoEvidence)
}

func TestSweep_ExpiresStalePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Seed a pending action past the horizon directly in the ledger
	old := types.Action{
		ID:         "act-old",
		ActionType: types.ActionIsolateHost,
		Title:      "Stale proposal",
		Target:     "host-1",
		Confidence: 0.8,
		Reason:     "old alert",
		Evidence:   []string{"f-1"},
		CreatedBy:  "agent-1",
		Status:     types.StatusPending,
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, env.ledger.Create(old, ActorPolicy, ""))

	// And a fresh one that must survive
	fresh, err := env.service.CreateAction(ctx, createReq(0.82, "host-2"))
	require.NoError(t, err)

	expired, err := env.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	gone, err := env.service.GetAction(ctx, "act-old")
	require.NoError(t, err)
	assert.Equal(t, types.StatusExpired, gone.Status)

	kept, err := env.service.GetAction(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, kept.Status)
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateAction(ctx, createReq(0.92, "host-1"))
	require.NoError(t, err)
	_, err = env.service.CreateAction(ctx, createReq(0.82, "host-2"))
	require.NoError(t, err)
	_, err = env.service.CreateAction(ctx, createReq(0.50, "host-3"))
	require.NoError(t, err)

	stats, err := env.service.GetStats(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[types.StatusExecuted])
	assert.Equal(t, 1, stats.ByStatus[types.StatusPending])
	assert.Equal(t, 1, stats.ByStatus[types.StatusMonitorOnly])
	assert.Equal(t, 1, stats.AutoApproved)
	assert.InDelta(t, 1.0/3.0, stats.AutoApprovedFrac, 1e-9)
}

func TestActionHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	action, err := env.service.CreateAction(ctx, createReq(0.82, "host-7"))
	require.NoError(t, err)
	_, err = env.service.ApproveAction(ctx, action.ID, "alice", "")
	require.NoError(t, err)

	history, err := env.service.ActionHistory(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.StatusPending, history[0].NewStatus)
	assert.Equal(t, types.StatusApproved, history[1].NewStatus)

	_, err = env.service.ActionHistory(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestConcurrentCreateSameTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const proposers = 8
	var wg sync.WaitGroup
	results := make(chan types.Action, proposers)

	for i := 0; i < proposers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			action, err := env.service.CreateAction(ctx, createReq(0.92, "host-7"))
			if err == nil {
				results <- action
			}
		}()
	}
	wg.Wait()
	close(results)

	// Target-level serialization: every creation succeeds, each as its
	// own action, and the effector saw them one at a time.
	count := 0
	for action := range results {
		assert.Contains(t, []types.ActionStatus{types.StatusExecuted, types.StatusFailed}, action.Status)
		count++
	}
	assert.Equal(t, proposers, count)
	assert.Equal(t, int64(proposers), env.effector.calls.Load())
}
