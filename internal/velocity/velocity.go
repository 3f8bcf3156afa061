// Package velocity provides trailing-window transaction counting.
package velocity

import (
	"sort"
	"time"
)

// TrailingCounts returns, for each timestamp, how many timestamps fall in the
// closed window [ts[i]-window, ts[i]]. Timestamps must be sorted ascending.
// Entries equal to ts[i] that sort after it are inside its window too.
func TrailingCounts(ts []time.Time, window time.Duration) []int {
	counts := make([]int, len(ts))
	for i, cur := range ts {
		start := cur.Add(-window)

		// first index with ts >= start
		lo := sort.Search(len(ts), func(j int) bool {
			return !ts[j].Before(start)
		})
		// first index with ts > cur
		hi := sort.Search(len(ts), func(j int) bool {
			return ts[j].After(cur)
		})

		counts[i] = hi - lo
	}
	return counts
}
