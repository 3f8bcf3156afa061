package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

var day = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// sliceSource hands out a fresh copy of its rows on every load.
type sliceSource struct {
	loads atomic.Int32
	err   error
}

func (s *sliceSource) Load(ctx context.Context) ([]*domain.Transaction, error) {
	s.loads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	amounts := []float64{98, 99, 100, 101, 102, 99, 101, 100, 100, 1000}
	txs := make([]*domain.Transaction, len(amounts))
	for i, a := range amounts {
		txs[i] = &domain.Transaction{
			UserID:       1,
			Timestamp:    day.AddDate(0, 0, i).Add(10 * time.Hour),
			MerchantName: "Grocer",
			Amount:       a,
		}
	}
	return txs, nil
}

func userID(v int64) *int64 { return &v }

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	cfg := domain.DefaultRuleConfig()
	kinds, err := rules.ParseKinds(domain.DefaultRuntimeRules)
	require.NoError(t, err)
	runtime, err := rules.Set(cfg, kinds)
	require.NoError(t, err)
	return rules.NewEngine(cfg, rules.WithRules(rules.DefaultSet(cfg)...), rules.WithRuntimeRules(runtime...))
}

func newRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMonitorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Minimal", func(t *testing.T) {
		m := New(newEngine(t), &sliceSource{})

		run, err := m.Run(ctx)
		require.NoError(t, err)

		assert.NotEmpty(t, run.ID)
		assert.NotEmpty(t, run.Metadata.TraceID)
		assert.Equal(t, 1, run.Metadata.ProfilesBuilt)
		assert.Equal(t, 10, run.Report.TotalTransactions)
		assert.Equal(t, 1, run.Report.SuspiciousTransactions)
		assert.Equal(t, 10.0, run.Report.SuspiciousPercentage)
		assert.False(t, run.OutputExported)
		assert.False(t, run.ReportExported)

		require.Len(t, run.Flagged, 1)
		assert.Equal(t, 1000.0, run.Flagged[0].Amount)

		assert.Len(t, m.Transactions(), 10)
		assert.Len(t, m.Suspicious(), 1)
		assert.Same(t, run, m.LatestRun())
		assert.Same(t, run.Report, m.LatestReport(ctx))
	})

	t.Run("NoRunYet", func(t *testing.T) {
		m := New(newEngine(t), &sliceSource{})
		assert.Nil(t, m.LatestRun())
		assert.Nil(t, m.LatestReport(ctx))
		assert.Empty(t, m.Suspicious())
	})

	t.Run("Exports", func(t *testing.T) {
		dir := t.TempDir()
		out := filepath.Join(dir, "out", "output.csv")
		rep := filepath.Join(dir, "out", "report.json")

		m := New(newEngine(t), &sliceSource{}, WithExports(out, rep))
		run, err := m.Run(ctx)
		require.NoError(t, err)

		assert.True(t, run.OutputExported)
		assert.True(t, run.ReportExported)

		data, err := os.ReadFile(rep)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.EqualValues(t, 10, decoded["total_transactions"])

		_, err = os.Stat(out)
		assert.NoError(t, err)
	})

	t.Run("ExportFailureDoesNotAbort", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		m := New(newEngine(t), &sliceSource{}, WithExports(filepath.Join(blocker, "output.csv"), ""))
		run, err := m.Run(ctx)
		require.NoError(t, err)
		assert.False(t, run.OutputExported)
		assert.False(t, run.ReportExported)
	})

	t.Run("LoadError", func(t *testing.T) {
		mt := metrics.New()
		boom := errors.New("boom")
		m := New(newEngine(t), &sliceSource{err: boom}, WithMetrics(mt))

		_, err := m.Run(ctx)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, m.LatestRun())

		n, err := testutil.GatherAndCount(mt.Registry(), "harrier_runs_total")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("NoRules", func(t *testing.T) {
		m := New(rules.NewEngine(domain.DefaultRuleConfig()), &sliceSource{})
		_, err := m.Run(ctx)
		assert.ErrorIs(t, err, rules.ErrNoRules)
	})

	t.Run("Backends", func(t *testing.T) {
		repo := newRepo(t)
		c := cache.NewLRUCache(100)
		b := bus.NewChannelBus(10)
		defer b.Close()

		var received atomic.Value
		_, err := b.Subscribe(ctx, domain.TopicReportGenerated, func(ctx context.Context, msg *domain.Message) error {
			var ev ReportEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			received.Store(ev.RunID)
			return nil
		})
		require.NoError(t, err)

		m := New(newEngine(t), &sliceSource{},
			WithRepository(repo),
			WithCache(c, time.Hour, time.Hour),
			WithBus(b),
			WithVersion("1.2.3"),
		)
		run, err := m.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", run.Metadata.EngineVersion)

		stored, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Report.SuspiciousTransactions, stored.Report.SuspiciousTransactions)

		cached, err := c.GetReport(ctx)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, 10, cached.TotalTransactions)

		assert.Eventually(t, func() bool {
			id, _ := received.Load().(string)
			return id == run.ID
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("ReportFromCacheFirst", func(t *testing.T) {
		c := cache.NewLRUCache(10)
		m := New(newEngine(t), &sliceSource{}, WithCache(c, time.Hour, time.Hour))
		_, err := m.Run(ctx)
		require.NoError(t, err)

		require.NoError(t, c.SetReport(ctx, &domain.Report{TotalTransactions: 42}, time.Hour))
		assert.Equal(t, 42, m.LatestReport(ctx).TotalTransactions)

		require.NoError(t, c.Delete(ctx, cache.ReportKey))
		assert.Equal(t, 10, m.LatestReport(ctx).TotalTransactions)
	})

	t.Run("RepeatedRunsAreIndependent", func(t *testing.T) {
		m := New(newEngine(t), &sliceSource{})
		first, err := m.Run(ctx)
		require.NoError(t, err)
		second, err := m.Run(ctx)
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, first.Report.RuleBreakdown, second.Report.RuleBreakdown)
	})
}

func TestMonitorCheck(t *testing.T) {
	ctx := context.Background()
	mt := metrics.New()
	c := cache.NewLRUCache(100)
	m := New(newEngine(t), &sliceSource{}, WithMetrics(mt), WithCache(c, time.Hour, time.Hour))
	_, err := m.Run(ctx)
	require.NoError(t, err)

	t.Run("Fraudulent", func(t *testing.T) {
		res := m.Check(ctx, &domain.Transaction{
			UserID:       1,
			Timestamp:    day.Add(22 * time.Hour),
			MerchantName: "Casino",
			Amount:       100,
		})
		assert.True(t, res.IsFraud)
		assert.Equal(t, 1, res.RuleStats["time_anomaly"])
		assert.Equal(t, 1, res.RuleStats["merchant_anomaly"])
	})

	t.Run("Normal", func(t *testing.T) {
		res := m.Check(ctx, &domain.Transaction{
			UserID:       1,
			Timestamp:    day.Add(10 * time.Hour),
			MerchantName: "Grocer",
			Amount:       100,
		})
		assert.False(t, res.IsFraud)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		res := m.Check(ctx, &domain.Transaction{UserID: 99, Timestamp: day, MerchantName: "Grocer", Amount: 1})
		assert.False(t, res.IsFraud)
		assert.Empty(t, res.RuleStats)
	})

	t.Run("OutcomesCounted", func(t *testing.T) {
		n, err := testutil.GatherAndCount(mt.Registry(), "harrier_checks_total")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("RequestCached", func(t *testing.T) {
		res, err := m.CheckRequest(ctx, domain.CheckRequest{
			RequestID:    "req-1",
			UserID:       userID(1),
			Timestamp:    "2024-06-03 22:00:00",
			MerchantName: "Casino",
			Amount:       100,
		})
		require.NoError(t, err)
		assert.True(t, res.IsFraud)

		cached, err := m.CachedCheck(ctx, "req-1")
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, res.RuleStats, cached.RuleStats)

		missing, err := m.CachedCheck(ctx, "req-2")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("RequestWithoutTimestamp", func(t *testing.T) {
		fixed := day.Add(10 * time.Hour)
		m.now = func() time.Time { return fixed }
		defer func() { m.now = time.Now }()

		res, err := m.CheckRequest(ctx, domain.CheckRequest{UserID: userID(1), MerchantName: "Grocer", Amount: 100})
		require.NoError(t, err)
		assert.False(t, res.IsFraud)
	})

	t.Run("RequestBadTimestamp", func(t *testing.T) {
		_, err := m.CheckRequest(ctx, domain.CheckRequest{UserID: userID(1), Timestamp: "yesterday", MerchantName: "Grocer"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("RequestMissingMerchant", func(t *testing.T) {
		_, err := m.CheckRequest(ctx, domain.CheckRequest{UserID: userID(1)})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("RequestMissingUser", func(t *testing.T) {
		_, err := m.CheckRequest(ctx, domain.CheckRequest{MerchantName: "Grocer"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("RequestUserZeroAndRefund", func(t *testing.T) {
		res, err := m.CheckRequest(ctx, domain.CheckRequest{
			UserID:       userID(0),
			Timestamp:    "2024-06-03 10:00:00",
			MerchantName: "Grocer",
			Amount:       -25,
		})
		require.NoError(t, err)
		assert.False(t, res.IsFraud)
	})
}

func TestMonitorImport(t *testing.T) {
	ctx := context.Background()
	txs := []*domain.Transaction{{UserID: 7, Timestamp: day, MerchantName: "Grocer", Amount: 10}}

	t.Run("NoRepository", func(t *testing.T) {
		m := New(newEngine(t), &sliceSource{})
		assert.ErrorIs(t, m.Import(ctx, txs), ErrNoRepository)
	})

	t.Run("Stored", func(t *testing.T) {
		repo := newRepo(t)
		m := New(newEngine(t), &sliceSource{}, WithRepository(repo))
		require.NoError(t, m.Import(ctx, txs))

		n, err := repo.CountTransactions(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}
