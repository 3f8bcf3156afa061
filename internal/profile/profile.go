// Package profile derives per-user behavioral profiles from transaction history.
package profile

import (
	"context"
	"math"
	"runtime"

	"github.com/opensource-finance/harrier/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Build groups transactions by user and profiles every user with at least
// minHistory transactions. Users below the threshold are omitted; callers
// treat a missing profile as an unknown user, not as an error.
//
// Per-user profiles are independent, so they are built concurrently.
func Build(ctx context.Context, txs []*domain.Transaction, minHistory int) (domain.Profiles, error) {
	groups, order := groupByUser(txs)

	eligible := make([]int64, 0, len(order))
	for _, userID := range order {
		if len(groups[userID]) >= minHistory {
			eligible = append(eligible, userID)
		}
	}

	built := make([]*domain.UserProfile, len(eligible))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, userID := range eligible {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			built[i] = buildOne(userID, groups[userID])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles := make(domain.Profiles, len(built))
	for _, p := range built {
		profiles[p.UserID] = p
	}
	return profiles, nil
}

func groupByUser(txs []*domain.Transaction) (map[int64][]*domain.Transaction, []int64) {
	groups := make(map[int64][]*domain.Transaction)
	var order []int64
	for _, tx := range txs {
		if _, seen := groups[tx.UserID]; !seen {
			order = append(order, tx.UserID)
		}
		groups[tx.UserID] = append(groups[tx.UserID], tx)
	}
	return groups, order
}

func buildOne(userID int64, txs []*domain.Transaction) *domain.UserProfile {
	p := &domain.UserProfile{
		UserID:             userID,
		ActiveHours:        make(map[int]int),
		CommonMerchants:    make(map[string]struct{}),
		MerchantAmountMean: make(map[string]float64),
		MerchantAmountStd:  make(map[string]float64),
		TransactionCount:   len(txs),
	}

	amounts := make([]float64, 0, len(txs))
	byMerchant := make(map[string][]float64)

	p.MinAmount = math.Inf(1)
	p.MaxAmount = math.Inf(-1)

	for _, tx := range txs {
		p.ActiveHours[tx.Hour()]++
		amounts = append(amounts, tx.Amount)
		byMerchant[tx.MerchantName] = append(byMerchant[tx.MerchantName], tx.Amount)

		p.MinAmount = math.Min(p.MinAmount, tx.Amount)
		p.MaxAmount = math.Max(p.MaxAmount, tx.Amount)
	}

	for merchant, vals := range byMerchant {
		if len(vals) >= 2 {
			p.CommonMerchants[merchant] = struct{}{}
		}
		mean := Mean(vals)
		p.MerchantAmountMean[merchant] = mean
		// A single visit has no sample deviation; record zero.
		p.MerchantAmountStd[merchant] = SampleStd(vals, mean)
	}

	p.AmountMean = Mean(amounts)
	if len(amounts) > 1 {
		p.AmountStd = SampleStd(amounts, p.AmountMean)
	} else {
		// One sample: fall back to half the mean so z-scores stay defined.
		p.AmountStd = p.AmountMean / 2
	}

	return p
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// SampleStd returns the sample standard deviation (n-1 denominator),
// or 0 when fewer than two values are given.
func SampleStd(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
