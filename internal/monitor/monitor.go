// Package monitor runs batch analysis passes and single-transaction checks,
// wiring the rule engine to sources, exports and the optional backends.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/ingest"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/report"
	"github.com/opensource-finance/harrier/internal/rules"
)

var tracer = otel.Tracer("harrier-monitor")

var (
	// ErrNoRepository is returned when an operation needs the repository and none is wired.
	ErrNoRepository = errors.New("repository not configured")

	// ErrInvalidRequest is returned for malformed check requests.
	ErrInvalidRequest = errors.New("invalid check request")
)

// Source supplies the transactions of a batch pass.
type Source interface {
	Load(ctx context.Context) ([]*domain.Transaction, error)
}

// ReportEvent is published on TopicReportGenerated after each pass.
type ReportEvent struct {
	RunID  string         `json:"runId"`
	Report *domain.Report `json:"report"`
}

// Monitor owns the latest evaluated batch. Batch passes are serialized;
// checks run concurrently against the engine's cached profiles.
type Monitor struct {
	engine  *rules.Engine
	source  Source
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	metrics *metrics.Metrics

	outputPath string
	reportPath string
	reportTTL  time.Duration
	checkTTL   time.Duration
	version    string
	now        func() time.Time

	runMu  sync.Mutex
	mu     sync.RWMutex
	txs    []*domain.Transaction
	latest *domain.Run
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRepository persists runs and enables repository-backed operations.
func WithRepository(repo domain.Repository) Option {
	return func(m *Monitor) { m.repo = repo }
}

// WithCache caches the latest report and check results.
func WithCache(c domain.Cache, reportTTL, checkTTL time.Duration) Option {
	return func(m *Monitor) {
		m.cache = c
		m.reportTTL = reportTTL
		m.checkTTL = checkTTL
	}
}

// WithBus publishes report events.
func WithBus(b domain.EventBus) Option {
	return func(m *Monitor) { m.bus = b }
}

// WithMetrics records pass and check metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithExports sets the CSV output and JSON report paths. Empty paths skip the export.
func WithExports(outputPath, reportPath string) Option {
	return func(m *Monitor) {
		m.outputPath = outputPath
		m.reportPath = reportPath
	}
}

// WithVersion stamps runs with the service version.
func WithVersion(v string) Option {
	return func(m *Monitor) { m.version = v }
}

// New creates a monitor over the given engine and source.
func New(engine *rules.Engine, source Source, opts ...Option) *Monitor {
	m := &Monitor{
		engine:    engine,
		source:    source,
		reportTTL: 24 * time.Hour,
		checkTTL:  time.Hour,
		version:   "dev",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Engine returns the rule engine.
func (m *Monitor) Engine() *rules.Engine {
	return m.engine
}

// Repository returns the wired repository, or nil.
func (m *Monitor) Repository() domain.Repository {
	return m.repo
}

// Run executes one batch pass: load, analyze, summarize, export, persist,
// cache and publish. Export and backend failures are logged and reflected in
// the run; only load and analysis failures abort the pass.
func (m *Monitor) Run(ctx context.Context) (*domain.Run, error) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	start := time.Now()
	run, err := m.run(ctx, start)
	if m.metrics != nil {
		m.metrics.AnalysisCompleted(time.Since(start), err)
	}
	return run, err
}

func (m *Monitor) run(ctx context.Context, start time.Time) (*domain.Run, error) {
	ctx, span := tracer.Start(ctx, "monitor.Run")
	defer span.End()

	runID := uuid.New().String()
	traceID := runID
	if sc := span.SpanContext(); sc.TraceID().IsValid() {
		traceID = sc.TraceID().String()
	}
	span.SetAttributes(attribute.String("run.id", runID))

	txs, err := m.source.Load(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	loadMs := time.Since(start).Milliseconds()

	rulesStart := time.Now()
	results, err := m.engine.Analyze(ctx, txs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	rulesMs := time.Since(rulesStart).Milliseconds()

	rep := report.Summarize(txs, m.engine.Config(), m.now())

	run := &domain.Run{
		ID:          runID,
		Report:      rep,
		RuleResults: results,
		Flagged:     domain.Suspicious(txs),
		Metadata: domain.RunMetadata{
			TraceID:       traceID,
			LoadMs:        loadMs,
			RulesMs:       rulesMs,
			ProfilesBuilt: len(m.engine.Profiles()),
			EngineVersion: m.version,
		},
	}

	run.OutputExported = m.export("output", m.outputPath, func(path string) error {
		return ingest.WriteCSVFile(path, txs)
	})
	run.ReportExported = m.export("report", m.reportPath, func(path string) error {
		return ingest.WriteReportFile(path, rep)
	})
	run.Metadata.TotalMs = time.Since(start).Milliseconds()

	m.mu.Lock()
	m.txs = txs
	m.latest = run
	m.mu.Unlock()

	m.persist(ctx, run)

	slog.Info("analysis completed",
		"run_id", run.ID,
		"trace_id", traceID,
		"transactions", rep.TotalTransactions,
		"suspicious", rep.SuspiciousTransactions,
		"profiles", run.Metadata.ProfilesBuilt,
		"duration_ms", run.Metadata.TotalMs,
	)

	return run, nil
}

func (m *Monitor) export(kind, path string, write func(string) error) bool {
	if path == "" {
		return false
	}
	if err := write(path); err != nil {
		slog.Error("export failed", "kind", kind, "path", path, "error", err)
		return false
	}
	return true
}

// persist hands the run to the optional backends. Failures are logged only.
func (m *Monitor) persist(ctx context.Context, run *domain.Run) {
	if m.repo != nil {
		if err := m.repo.SaveRun(ctx, run); err != nil {
			slog.Error("failed to save run", "run_id", run.ID, "error", err)
		}
	}

	if m.cache != nil {
		if err := m.cache.SetReport(ctx, run.Report, m.reportTTL); err != nil {
			slog.Error("failed to cache report", "run_id", run.ID, "error", err)
		}
	}

	if m.bus != nil {
		payload, _ := json.Marshal(ReportEvent{RunID: run.ID, Report: run.Report})
		if err := m.bus.Publish(ctx, domain.TopicReportGenerated, payload); err != nil {
			slog.Error("failed to publish report event", "run_id", run.ID, "error", err)
		}
	}
}

// Check evaluates one transaction with the runtime rule subset.
func (m *Monitor) Check(ctx context.Context, tx *domain.Transaction) *domain.FraudDetectionResult {
	res := m.engine.Check(ctx, tx, nil)

	if m.metrics != nil {
		switch {
		case len(res.RuleStats) == 0:
			m.metrics.CheckCompleted(metrics.OutcomeNoProfile)
		case res.IsFraud:
			m.metrics.CheckCompleted(metrics.OutcomeFraud)
		default:
			m.metrics.CheckCompleted(metrics.OutcomeClear)
		}
	}

	slog.Debug("transaction checked",
		"user_id", tx.UserID,
		"merchant", tx.MerchantName,
		"is_fraud", res.IsFraud,
	)
	return res
}

// CheckRequest converts req into a transaction and checks it. A missing
// timestamp means now. Results of requests with an ID are cached.
func (m *Monitor) CheckRequest(ctx context.Context, req domain.CheckRequest) (*domain.FraudDetectionResult, error) {
	tx, err := m.requestTransaction(req)
	if err != nil {
		return nil, err
	}

	res := m.Check(ctx, tx)

	if m.cache != nil && req.RequestID != "" {
		if err := cache.SetJSON(ctx, m.cache, cache.CheckKey(req.RequestID), res, m.checkTTL); err != nil {
			slog.Warn("failed to cache check result", "request_id", req.RequestID, "error", err)
		}
	}
	return res, nil
}

// CachedCheck returns a cached check result, or nil when absent.
func (m *Monitor) CachedCheck(ctx context.Context, requestID string) (*domain.FraudDetectionResult, error) {
	if m.cache == nil {
		return nil, nil
	}
	var res domain.FraudDetectionResult
	ok, err := cache.GetJSON(ctx, m.cache, cache.CheckKey(requestID), &res)
	if !ok {
		return nil, err
	}
	return &res, nil
}

func (m *Monitor) requestTransaction(req domain.CheckRequest) (*domain.Transaction, error) {
	at := m.now().UTC()
	if req.Timestamp != "" {
		t, err := ingest.ParseTimestamp(req.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		at = t
	}
	if req.UserID == nil {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if req.MerchantName == "" {
		return nil, fmt.Errorf("%w: merchantName is required", ErrInvalidRequest)
	}
	return &domain.Transaction{
		UserID:       *req.UserID,
		Timestamp:    at,
		MerchantName: req.MerchantName,
		Amount:       req.Amount,
	}, nil
}

// Import appends history rows to the repository.
func (m *Monitor) Import(ctx context.Context, txs []*domain.Transaction) error {
	if m.repo == nil {
		return ErrNoRepository
	}
	return m.repo.SaveTransactions(ctx, txs)
}

// Transactions returns the evaluated transactions of the latest pass.
func (m *Monitor) Transactions() []*domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Transaction(nil), m.txs...)
}

// Suspicious returns the flagged subset of the latest pass.
func (m *Monitor) Suspicious() []*domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Suspicious(m.txs)
}

// LatestRun returns the latest pass, or nil before the first one.
func (m *Monitor) LatestRun() *domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// LatestReport returns the latest report, from the cache first, then memory.
// It returns nil before the first pass.
func (m *Monitor) LatestReport(ctx context.Context) *domain.Report {
	if m.cache != nil {
		rep, err := m.cache.GetReport(ctx)
		if err != nil {
			slog.Warn("failed to read cached report", "error", err)
		}
		if rep != nil {
			return rep
		}
	}
	if run := m.LatestRun(); run != nil {
		return run.Report
	}
	return nil
}
