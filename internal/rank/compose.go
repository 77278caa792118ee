// Package rank turns per-cluster signals into the final ordered output:
// weighted priority composition, history penalty, and diversity reranking.
package rank

import (
	"sort"

	"github.com/nmery/needscan/internal/config"
	"github.com/nmery/needscan/internal/types"
)

// Compose combines a signal set into a raw priority on the 0-10 scale.
// Weights are validated at configuration load; Compose itself is total.
// FounderFit deliberately does not participate: it is advisory output for
// the reader, not a ranking input.
func Compose(s types.SignalSet, w config.Weights) float64 {
	sum := w.Sum()
	if sum == 0 {
		return 0
	}
	raw := w.Pain*s.Pain +
		w.Traction*s.Traction +
		w.Novelty*s.Novelty +
		w.WTP*s.WTP +
		w.Trend*s.Trend
	return raw / sum
}

// Adjust applies the history penalty: adjusted = raw * (1 - alpha*maxSim).
// With an empty ledger maxSim is 0 and adjusted equals raw for any alpha.
func Adjust(raw, maxSimilarity, alpha float64) float64 {
	penalty := alpha * maxSimilarity
	if penalty < 0 {
		penalty = 0
	}
	if penalty > 1 {
		penalty = 1
	}
	return raw * (1 - penalty)
}

// AssignRanks orders insights by adjusted priority descending and writes
// Rank 1..N. Ties break by cluster id ascending so repeated runs over the
// same input produce identical orderings.
func AssignRanks(insights []*types.Insight) {
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].PriorityAdjusted != insights[j].PriorityAdjusted {
			return insights[i].PriorityAdjusted > insights[j].PriorityAdjusted
		}
		return insights[i].ClusterID < insights[j].ClusterID
	})
	for i, in := range insights {
		in.Rank = i + 1
	}
}
