// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultRunLimit caps ListRuns when no limit is given.
const DefaultRunLimit = 20

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransactions appends history rows in one database transaction.
// Evaluation state is not stored.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return fmt.Errorf("%w: no transactions", ErrInvalidInput)
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, r.rebind(`
		INSERT INTO transactions (user_id, timestamp, merchant_name, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, tx := range txs {
		if tx.MerchantName == "" {
			return fmt.Errorf("%w: transaction %d has no merchant", ErrInvalidInput, i)
		}
		if _, err := stmt.ExecContext(ctx, tx.UserID, tx.Timestamp.UTC(), tx.MerchantName, tx.Amount, now); err != nil {
			return fmt.Errorf("failed to insert transaction %d: %w", i, err)
		}
	}

	return dbtx.Commit()
}

// ListTransactions returns the stored history in insertion order.
func (r *SQLRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, timestamp, merchant_name, amount
		FROM transactions
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.UserID, &tx.Timestamp, &tx.MerchantName, &tx.Amount); err != nil {
			return nil, err
		}
		tx.Timestamp = tx.Timestamp.UTC()
		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}

// CountTransactions returns the number of stored history rows.
func (r *SQLRepository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// SaveRun stores a completed analysis run.
func (r *SQLRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	if run == nil || run.ID == "" || run.Report == nil {
		return fmt.Errorf("%w: run id and report are required", ErrInvalidInput)
	}

	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	ruleResults, _ := json.Marshal(run.RuleResults)
	flagged, _ := json.Marshal(run.Flagged)
	metadata, _ := json.Marshal(run.Metadata)

	query := `
		INSERT INTO runs (
			id, created_at, total_transactions, suspicious_transactions,
			report, rule_results, flagged, output_exported, report_exported, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, run.Report.Timestamp.UTC(),
		run.Report.TotalTransactions, run.Report.SuspiciousTransactions,
		string(report), string(ruleResults), string(flagged),
		boolInt(run.OutputExported), boolInt(run.ReportExported),
		string(metadata),
	)
	return err
}

// GetRun retrieves a run by ID.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
		SELECT id, report, rule_results, flagged, output_exported, report_exported, metadata
		FROM runs
		WHERE id = ?
	`

	var run domain.Run
	var report, ruleResults, flagged, metadata string
	var outputExported, reportExported int

	err := r.db.QueryRowContext(ctx, r.rebind(query), runID).Scan(
		&run.ID, &report, &ruleResults, &flagged,
		&outputExported, &reportExported, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return nil, fmt.Errorf("failed to parse report for run %s: %w", runID, err)
	}
	json.Unmarshal([]byte(ruleResults), &run.RuleResults)
	json.Unmarshal([]byte(flagged), &run.Flagged)
	json.Unmarshal([]byte(metadata), &run.Metadata)
	run.OutputExported = outputExported == 1
	run.ReportExported = reportExported == 1

	return &run, nil
}

// ListRuns returns the most recent runs first.
func (r *SQLRepository) ListRuns(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	query := `
		SELECT id, total_transactions, suspicious_transactions, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.RunSummary, 0)
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.ID, &s.TotalTransactions, &s.SuspiciousTransactions, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt = s.CreatedAt.UTC()
		runs = append(runs, &s)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
