package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/domain"
)

func fixture() []*domain.Transaction {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	txs := []*domain.Transaction{
		{UserID: 1, Timestamp: base.Add(9 * time.Hour), MerchantName: "Grocer", Amount: 40},
		{UserID: 1, Timestamp: base.Add(23 * time.Hour), MerchantName: "Casino", Amount: 900},
		{UserID: 2, Timestamp: base.Add(12 * time.Hour), MerchantName: "Cafe", Amount: 4.5},
	}
	txs[1].Flag("Time anomaly", "Unusual hour 23")
	txs[1].Flag("Amount anomaly", "$900.0 (z-score: 3.00)")
	return txs
}

func TestFilter(t *testing.T) {
	txs := fixture()

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"Amount", "amount > 100.0", []string{"Casino"}},
		{"User", "user_id == 1", []string{"Grocer", "Casino"}},
		{"Hour", "hour >= 12", []string{"Casino", "Cafe"}},
		{"Merchant", `merchant.startsWith("C")`, []string{"Casino", "Cafe"}},
		{"Suspicious", "!suspicious", []string{"Grocer", "Cafe"}},
		{"Category", `"Amount anomaly" in categories`, []string{"Casino"}},
		{"Reasons", `reasons.exists(r, r.contains("hour 23"))`, []string{"Casino"}},
		{"None", "false", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.String())

			got, err := f.Apply(txs)
			require.NoError(t, err)

			names := make([]string, 0, len(got))
			for _, tx := range got {
				names = append(names, tx.MerchantName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{
		"amount >",               // syntax
		"amount + 1.0",           // not bool
		"unknown_var == 1",       // undeclared
		`amount.startsWith("1")`, // no overload
	} {
		_, err := Compile(expr)
		assert.ErrorIs(t, err, ErrInvalidExpression, expr)
	}
}
