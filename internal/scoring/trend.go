package scoring

import (
	"math"

	"github.com/nmery/needscan/internal/types"
	"github.com/nmery/needscan/internal/vec"
)

// trendSimilarityFloor is how close a history entry's embedding must be to
// count as "the same theme" when measuring growth over time.
const trendSimilarityFloor = 0.75

// TrendScore measures whether a theme is growing: the cluster's size is
// compared against the mean size of similar entries in the history window
// and the relative growth is squashed onto 0-10 with a sigmoid. No similar
// history means the neutral midpoint, the documented cold-start fallback.
func TrendScore(c *types.Cluster, window []types.HistoryEntry) float64 {
	var sizes []float64
	for _, e := range window {
		if e.MemberCount <= 0 {
			continue
		}
		if vec.Cosine(c.Centroid, e.Embedding) >= trendSimilarityFloor {
			sizes = append(sizes, float64(e.MemberCount))
		}
	}
	if len(sizes) == 0 {
		return types.NeutralSignal
	}

	mean := 0.0
	for _, s := range sizes {
		mean += s
	}
	mean /= float64(len(sizes))
	if mean == 0 {
		return types.NeutralSignal
	}

	growth := (float64(c.MemberCount) - mean) / mean
	// sigmoid(2x) keeps modest growth near the midpoint and saturates on
	// severalfold swings
	score := 10 / (1 + math.Exp(-2*growth))
	return types.ClampScore(score)
}
