package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

var now = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func TestSummarize(t *testing.T) {
	txs := []*domain.Transaction{
		{UserID: 1, Amount: 10},
		{UserID: 1, Amount: 500},
		{UserID: 2, Amount: 20},
	}
	txs[1].Flag("Amount anomaly", "$500.0 (z-score: 3.10)")
	txs[1].Flag("Merchant anomaly", "New merchant Casino")
	txs[2].Flag("Velocity", "3 txns in 30 mins")

	cfg := domain.DefaultRuleConfig()
	r := Summarize(txs, cfg, now)

	assert.Equal(t, 3, r.TotalTransactions)
	assert.Equal(t, 2, r.SuspiciousTransactions)
	assert.Equal(t, 66.67, r.SuspiciousPercentage)
	assert.Equal(t, 2, r.TotalUsers)
	assert.Equal(t, 2, r.UsersWithFlags)
	assert.Equal(t, 100.0, r.UsersWithFlagsPercentage)
	assert.Equal(t, map[string]int{
		"Amount anomaly":   1,
		"Merchant anomaly": 1,
		"Velocity":         1,
	}, r.RuleBreakdown)
	assert.Equal(t, cfg, r.Config)
	assert.True(t, r.Timestamp.Equal(now))
}

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil, domain.DefaultRuleConfig(), now)

	assert.Zero(t, r.TotalTransactions)
	assert.Zero(t, r.SuspiciousTransactions)
	assert.Zero(t, r.SuspiciousPercentage)
	assert.Zero(t, r.TotalUsers)
	assert.Zero(t, r.UsersWithFlagsPercentage)
	assert.Empty(t, r.RuleBreakdown)
}

func TestSummarizeCountsEveryFlag(t *testing.T) {
	tx := &domain.Transaction{UserID: 7}
	tx.Flag("Amount anomaly", "$900.0 (z-score: 4.00)")
	tx.Flag("Amount anomaly", "$900.0 (z-score: 4.00)")

	r := Summarize([]*domain.Transaction{tx}, domain.DefaultRuleConfig(), now)

	assert.Equal(t, 1, r.SuspiciousTransactions)
	assert.Equal(t, 2, r.RuleBreakdown["Amount anomaly"])
}

func TestReportJSON(t *testing.T) {
	r := Summarize(nil, domain.DefaultRuleConfig(), now)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{
		"total_transactions", "suspicious_transactions", "suspicious_percentage",
		"total_users", "users_with_flags", "users_with_flags_percentage",
		"rule_breakdown", "config", "timestamp",
	} {
		assert.Contains(t, fields, key)
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		want        float64
	}{
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 5, 100},
		{1, 8, 12.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.part, tt.total), "%d/%d", tt.part, tt.total)
	}
}
