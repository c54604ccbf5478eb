package correlate

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentinelops/arbiter/telemetry"
	"github.com/sentinelops/arbiter/types"
)

// DefaultWindow bounds how far apart signals may be and still corroborate
const DefaultWindow = 15 * time.Minute

// corroborationBonus is applied when three or more distinct source
// categories intersect in one window. Cross-signal corroboration is the
// strongest single predictor this engine uses.
const (
	corroborationBonus   = 0.05
	corroborationSources = 3
)

// Options tune the scoring engine
type Options struct {
	Window time.Duration
}

// Result is the output of scoring: a confidence value and the ordered
// evidence ids that contributed to it.
type Result struct {
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
	Sources    int      `json:"sources"`
}

// Engine combines independent evidence signals into a confidence score
type Engine struct {
	window time.Duration
	logger *telemetry.Logger
	tracer trace.Tracer
}

// NewEngine creates a scoring engine
func NewEngine(opts Options) *Engine {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	return &Engine{
		window: window,
		logger: telemetry.NewLogger("correlate"),
		tracer: otel.Tracer("correlate"),
	}
}

// Score derives a confidence value for the target from the given signals.
// Signals not touching the target are discarded; the densest temporal
// window is scored with a noisy-OR over distinct-source severities.
func (e *Engine) Score(ctx context.Context, target string, signals []types.Signal) (Result, error) {
	_, span := e.tracer.Start(ctx, "correlate.score",
		trace.WithAttributes(
			attribute.String("target", target),
			attribute.Int("signals", len(signals)),
		))
	defer span.End()

	for i := range signals {
		if err := signals[i].Validate(); err != nil {
			return Result{}, err
		}
	}

	relevant := filterRelevant(target, signals)
	if len(relevant) == 0 {
		e.logger.Debug().
			Str("target", target).
			Int("signals", len(signals)).
			Msg("no relevant signals for target")
		return Result{}, nil
	}

	window := e.densestWindow(relevant)
	confidence, sources := scoreWindow(window)

	result := Result{
		Confidence: confidence,
		Evidence:   evidenceIDs(window),
		Sources:    sources,
	}

	e.logger.Debug().
		Str("target", target).
		Float64("confidence", result.Confidence).
		Int("window_signals", len(window)).
		Int("distinct_sources", sources).
		Msg("scored signal window")

	return result, nil
}

// filterRelevant keeps signals whose entity set contains the target
func filterRelevant(target string, signals []types.Signal) []types.Signal {
	var relevant []types.Signal
	for _, s := range signals {
		if s.Touches(target) {
			relevant = append(relevant, s)
		}
	}
	return relevant
}

// densestWindow slides a window across the signals sorted by time and
// returns the signals in the window containing the most of them. Signals
// outside every dense window score on their own, not combined.
func (e *Engine) densestWindow(signals []types.Signal) []types.Signal {
	sorted := append([]types.Signal(nil), signals...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	best := sorted[:1]
	for i := range sorted {
		end := sorted[i].Timestamp.Add(e.window)
		j := i
		for j < len(sorted) && !sorted[j].Timestamp.After(end) {
			j++
		}
		if j-i > len(best) {
			best = sorted[i:j]
		}
	}

	return best
}

// scoreWindow combines one window's signals into a confidence score.
// Same-source signals collapse to their maximum severity first, so one
// noisy feed cannot inflate the score alone; distinct sources then combine
// with a noisy-OR, which rewards independent corroboration.
func scoreWindow(window []types.Signal) (float64, int) {
	bySource := make(map[string]float64)
	for _, s := range window {
		if s.Severity > bySource[s.Source] {
			bySource[s.Source] = s.Severity
		}
	}

	miss := 1.0
	for _, severity := range bySource {
		miss *= 1.0 - severity
	}
	score := 1.0 - miss

	if len(bySource) >= corroborationSources {
		score += corroborationBonus
	}
	if score > 1.0 {
		score = 1.0
	}

	return score, len(bySource)
}

// evidenceIDs returns the window's evidence ids ordered by signal time
func evidenceIDs(window []types.Signal) []string {
	ids := make([]string, 0, len(window))
	for _, s := range window {
		ids = append(ids, s.EvidenceID)
	}
	return ids
}
