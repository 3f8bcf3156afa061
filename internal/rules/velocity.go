package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// velocityCheck flags every transaction whose trailing window holds at least
// VelocityThresholdCount transactions of the same user. No profile needed.
func velocityCheck(cfg domain.RuleConfig) applyFunc {
	window := time.Duration(cfg.VelocityWindowMinutes) * time.Minute

	return func(txs []*domain.Transaction, _ domain.Profiles) int {
		flagged := 0

		for _, idx := range indicesByUser(txs) {
			sort.SliceStable(idx, func(a, b int) bool {
				return txs[idx[a]].Timestamp.Before(txs[idx[b]].Timestamp)
			})

			ts := make([]time.Time, len(idx))
			for k, i := range idx {
				ts[k] = txs[i].Timestamp
			}

			for k, count := range velocity.TrailingCounts(ts, window) {
				if count >= cfg.VelocityThresholdCount {
					txs[idx[k]].Flag(CategoryVelocity,
						fmt.Sprintf("%d txns in %d mins", count, cfg.VelocityWindowMinutes))
					flagged++
				}
			}
		}

		return flagged
	}
}

// indicesByUser groups positions by user, users in first-seen order.
func indicesByUser(txs []*domain.Transaction) [][]int {
	pos := make(map[int64]int)
	var groups [][]int
	for i, tx := range txs {
		g, ok := pos[tx.UserID]
		if !ok {
			g = len(groups)
			pos[tx.UserID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
