package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/profile"
)

var tracer = otel.Tracer("harrier-rules")

// Recorder receives engine activity. The metrics package implements it.
type Recorder interface {
	RuleFlagged(rule string, flagged int)
	ProfilesBuilt(count int)
}

// Engine builds profiles and runs the configured rules.
//
// The profile map is rebuilt on every batch pass and swapped atomically:
// single-transaction checks in flight keep reading the map they loaded,
// later checks see the new one.
type Engine struct {
	cfg      domain.RuleConfig
	rules    []Rule
	runtime  []Rule
	recorder Recorder
	profiles atomic.Pointer[domain.Profiles]
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules sets the rule set used for batch passes.
func WithRules(set ...Rule) Option {
	return func(e *Engine) { e.rules = set }
}

// WithRuntimeRules sets the rule subset used for single-transaction checks.
func WithRuntimeRules(set ...Rule) Option {
	return func(e *Engine) { e.runtime = set }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a rule engine. Without WithRules, batch passes fail with ErrNoRules.
func NewEngine(cfg domain.RuleConfig, opts ...Option) *Engine {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	empty := domain.Profiles{}
	e.profiles.Store(&empty)
	return e
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() domain.RuleConfig {
	return e.cfg
}

// Rules returns the batch rule set.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// RuntimeRules returns the single-check rule subset.
func (e *Engine) RuntimeRules() []Rule {
	return e.runtime
}

// Profiles returns the current profile map. Callers must not modify it.
func (e *Engine) Profiles() domain.Profiles {
	return *e.profiles.Load()
}

// SetProfiles replaces the profile map used by single-transaction checks.
func (e *Engine) SetProfiles(p domain.Profiles) {
	if p == nil {
		p = domain.Profiles{}
	}
	e.profiles.Store(&p)
}

// Analyze runs a batch pass: it rebuilds profiles from txs, publishes them
// for later checks, then applies every rule in order over the whole batch.
// Flags accumulate on txs; call domain.ResetAll first for a clean pass.
func (e *Engine) Analyze(ctx context.Context, txs []*domain.Transaction) ([]domain.RuleResult, error) {
	if len(e.rules) == 0 {
		return nil, ErrNoRules
	}

	ctx, span := tracer.Start(ctx, "rules.Analyze",
		trace.WithAttributes(
			attribute.Int("transactions", len(txs)),
			attribute.Int("rules", len(e.rules)),
		),
	)
	defer span.End()

	profiles, err := profile.Build(ctx, txs, e.cfg.MinUserHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to build profiles: %w", err)
	}
	e.SetProfiles(profiles)

	span.SetAttributes(attribute.Int("profiles", len(profiles)))
	if e.recorder != nil {
		e.recorder.ProfilesBuilt(len(profiles))
	}

	results := RunRules(txs, profiles, e.rules)
	for _, r := range results {
		slog.Debug("rule applied", "rule", r.Rule, "flagged", r.Flagged)
		if e.recorder != nil {
			e.recorder.RuleFlagged(r.Rule, r.Flagged)
		}
	}

	return results, nil
}

// Check evaluates one incoming transaction against the cached profiles.
// A nil set uses the runtime rule subset. Users without a profile are not
// evaluated and yield a non-fraud result with empty stats.
func (e *Engine) Check(ctx context.Context, tx *domain.Transaction, set []Rule) *domain.FraudDetectionResult {
	_, span := tracer.Start(ctx, "rules.Check",
		trace.WithAttributes(attribute.Int64("user.id", tx.UserID)),
	)
	defer span.End()

	profiles := e.Profiles()
	if profiles.Get(tx.UserID) == nil {
		span.SetAttributes(attribute.Bool("profile.found", false))
		return &domain.FraudDetectionResult{RuleStats: map[string]int{}}
	}

	if set == nil {
		set = e.runtime
	}

	result := domain.NewFraudDetectionResult(RunRules([]*domain.Transaction{tx}, profiles, set))
	span.SetAttributes(attribute.Bool("fraud", result.IsFraud))
	return result
}
