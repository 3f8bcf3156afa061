package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// merchantRiskGate is the level the configured merchant risk threshold must
// exceed for the merchant rule to flag anything.
const merchantRiskGate = 0.3

// timeAnomaly flags transactions whose hour is further than the tolerance
// from every hour the user has been active in. An exact hour match never flags.
func timeAnomaly(cfg domain.RuleConfig) applyFunc {
	return func(txs []*domain.Transaction, profiles domain.Profiles) int {
		flagged := 0
		for _, tx := range txs {
			p := profiles.Get(tx.UserID)
			if p == nil || len(p.ActiveHours) == 0 {
				continue
			}

			h := tx.Hour()
			if _, ok := p.ActiveHours[h]; ok {
				continue
			}

			if nearestActiveHour(h, p.ActiveHours) > cfg.TimeAnomalyHourTolerance {
				tx.Flag(CategoryTime, fmt.Sprintf("Unusual hour %d", h))
				flagged++
			}
		}
		return flagged
	}
}

// nearestActiveHour returns the smallest circular distance from h to any active hour.
func nearestActiveHour(h int, active map[int]int) int {
	best := math.MaxInt
	for common := range active {
		if d := hourDistance(h, common); d < best {
			best = d
		}
	}
	return best
}

// hourDistance is the distance between two hours on a 24-hour clock.
func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	return min(d, 24-d)
}

// merchantAnomaly flags transactions at merchants outside the user's common set.
// The configured risk threshold acts as an on/off switch, not a per-merchant score.
func merchantAnomaly(cfg domain.RuleConfig) applyFunc {
	return func(txs []*domain.Transaction, profiles domain.Profiles) int {
		if cfg.MerchantAnomalyRiskThreshold <= merchantRiskGate {
			return 0
		}

		flagged := 0
		for _, tx := range txs {
			p := profiles.Get(tx.UserID)
			if p == nil || p.IsCommonMerchant(tx.MerchantName) {
				continue
			}
			tx.Flag(CategoryMerchant, "New merchant "+tx.MerchantName)
			flagged++
		}
		return flagged
	}
}

// amountDeviation flags amounts whose z-score against the user's history
// exceeds the threshold. Users with no spread in their history are skipped.
func amountDeviation(cfg domain.RuleConfig) applyFunc {
	return func(txs []*domain.Transaction, profiles domain.Profiles) int {
		flagged := 0
		for _, tx := range txs {
			p := profiles.Get(tx.UserID)
			if p == nil || p.AmountStd <= 0 {
				continue
			}

			z := ZScore(tx.Amount, p.AmountMean, p.AmountStd)
			if z > cfg.AmountDeviationStdThreshold {
				tx.Flag(CategoryAmount, fmt.Sprintf("$%s (z-score: %.2f)", FormatAmount(tx.Amount), z))
				flagged++
			}
		}
		return flagged
	}
}

// FormatAmount renders an amount with the shortest exact decimal form and at
// least one fractional digit: 126 -> "126.0", 126.5 -> "126.5".
func FormatAmount(amount float64) string {
	s := decimal.NewFromFloat(amount).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ZScore returns |value-mean|/std. std must be positive.
func ZScore(value, mean, std float64) float64 {
	return math.Abs(value-mean) / std
}
