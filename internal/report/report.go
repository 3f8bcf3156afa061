// Package report aggregates an evaluated batch into a summary report.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Summarize builds the report for an evaluated batch.
//
// The rule breakdown is re-aggregated from the flags attached to each
// transaction, one count per flag, keyed by flag category. It does not use the
// counts returned by the rules, so a transaction flagged twice by the same
// rule counts twice.
func Summarize(txs []*domain.Transaction, cfg domain.RuleConfig, now time.Time) *domain.Report {
	users := make(map[int64]struct{})
	flaggedUsers := make(map[int64]struct{})
	breakdown := make(map[string]int)
	suspicious := 0

	for _, tx := range txs {
		users[tx.UserID] = struct{}{}
		if !tx.IsSuspicious {
			continue
		}
		suspicious++
		flaggedUsers[tx.UserID] = struct{}{}
		for _, f := range tx.Flags {
			breakdown[f.Category]++
		}
	}

	return &domain.Report{
		TotalTransactions:        len(txs),
		SuspiciousTransactions:   suspicious,
		SuspiciousPercentage:     Percentage(suspicious, len(txs)),
		TotalUsers:               len(users),
		UsersWithFlags:           len(flaggedUsers),
		UsersWithFlagsPercentage: Percentage(len(flaggedUsers), len(users)),
		RuleBreakdown:            breakdown,
		Config:                   cfg,
		Timestamp:                now.UTC(),
	}
}

// Percentage returns part/total*100 rounded to two decimals, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
	f, _ := pct.Float64()
	return f
}
