package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndListTransactions", func(t *testing.T) {
		txs := []*domain.Transaction{
			{UserID: 2, Timestamp: base.Add(time.Hour), MerchantName: "Cafe", Amount: 4.5},
			{UserID: 1, Timestamp: base, MerchantName: "Grocer", Amount: 30.25},
			{UserID: 1, Timestamp: base, MerchantName: "Books", Amount: 9.99},
		}
		txs[0].Flag("Velocity", "3 txns in 30 mins")

		if err := repo.SaveTransactions(ctx, txs); err != nil {
			t.Fatalf("SaveTransactions failed: %v", err)
		}

		got, err := repo.ListTransactions(ctx)
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 transactions, got %d", len(got))
		}

		// insertion order is preserved
		for i, want := range []string{"Cafe", "Grocer", "Books"} {
			if got[i].MerchantName != want {
				t.Errorf("position %d: expected %s, got %s", i, want, got[i].MerchantName)
			}
		}
		if got[1].Amount != 30.25 {
			t.Errorf("expected Amount 30.25, got %.2f", got[1].Amount)
		}
		if !got[1].Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got[1].Timestamp)
		}
		if got[0].IsSuspicious || len(got[0].Flags) != 0 {
			t.Error("evaluation state should not be persisted")
		}

		n, err := repo.CountTransactions(ctx)
		if err != nil {
			t.Fatalf("CountTransactions failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected count 3, got %d", n)
		}
	})

	t.Run("RejectsInvalidTransactions", func(t *testing.T) {
		if err := repo.SaveTransactions(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty batch, got %v", err)
		}

		bad := []*domain.Transaction{
			{UserID: 5, Timestamp: base, MerchantName: "Ok", Amount: 1},
			{UserID: 5, Timestamp: base, Amount: 1},
		}
		if err := repo.SaveTransactions(ctx, bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		// the batch is rolled back as a whole
		n, _ := repo.CountTransactions(ctx)
		if n != 3 {
			t.Errorf("expected count to stay 3, got %d", n)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		flagged := &domain.Transaction{UserID: 1, Timestamp: base, MerchantName: "Casino", Amount: 900}
		flagged.Flag("Amount anomaly", "$900.0 (z-score: 2.84)")

		run := &domain.Run{
			ID: "run-001",
			Report: &domain.Report{
				TotalTransactions:      10,
				SuspiciousTransactions: 1,
				SuspiciousPercentage:   10,
				RuleBreakdown:          map[string]int{"Amount anomaly": 1},
				Config:                 domain.DefaultRuleConfig(),
				Timestamp:              base,
			},
			RuleResults:    []domain.RuleResult{{Rule: "amount_deviation", Flagged: 1}},
			Flagged:        []*domain.Transaction{flagged},
			OutputExported: true,
			Metadata:       domain.RunMetadata{TraceID: "trace-001", ProfilesBuilt: 1},
		}

		if err := repo.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		got, err := repo.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}

		if got.Report.TotalTransactions != 10 || got.Report.RuleBreakdown["Amount anomaly"] != 1 {
			t.Errorf("unexpected report: %+v", got.Report)
		}
		if got.Report.Config != domain.DefaultRuleConfig() {
			t.Errorf("expected config snapshot, got %+v", got.Report.Config)
		}
		if len(got.RuleResults) != 1 || got.RuleResults[0].Rule != "amount_deviation" {
			t.Errorf("unexpected rule results: %+v", got.RuleResults)
		}
		if len(got.Flagged) != 1 || got.Flagged[0].FlagReasons() != flagged.FlagReasons() {
			t.Errorf("unexpected flagged rows: %+v", got.Flagged)
		}
		if !got.OutputExported || got.ReportExported {
			t.Errorf("unexpected export flags: %v %v", got.OutputExported, got.ReportExported)
		}
		if got.Metadata.TraceID != "trace-001" {
			t.Errorf("expected trace id, got %q", got.Metadata.TraceID)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		second := &domain.Run{
			ID:     "run-002",
			Report: &domain.Report{TotalTransactions: 12, Timestamp: base.Add(time.Hour)},
		}
		if err := repo.SaveRun(ctx, second); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		runs, err := repo.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-002" || runs[0].TotalTransactions != 12 {
			t.Errorf("expected newest run first, got %+v", runs[0])
		}

		runs, _ = repo.ListRuns(ctx, 1)
		if len(runs) != 1 {
			t.Errorf("expected limit 1, got %d", len(runs))
		}
	})

	t.Run("RejectsInvalidRun", func(t *testing.T) {
		if err := repo.SaveRun(ctx, &domain.Run{ID: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetRun(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	if _, err := New(cfg); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestSchemas(t *testing.T) {
	for _, s := range AllSchemas("sqlite") {
		if strings.Contains(s, "{{ID}}") || strings.Contains(s, "BIGSERIAL") {
			t.Errorf("unexpected sqlite schema: %s", s)
		}
	}
	if !strings.Contains(AllSchemas("postgres")[0], "BIGSERIAL PRIMARY KEY") {
		t.Error("expected BIGSERIAL id for postgres")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
	want := "host=localhost port=5432 user=u password=p dbname=harrier sslmode=disable"
	if dsn != want {
		t.Errorf("got %q, want %q", dsn, want)
	}
}

func TestSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "h.db")
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer repo.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file: %v", err)
	}
}
