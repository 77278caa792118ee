package scoring

import "github.com/nmery/needscan/internal/types"

// NoveltyScore maps similarity to history onto 0-10: a cluster nobody has
// seen scores high, a near-repeat scores low. With no history in the window
// the score is the neutral midpoint, a documented fallback so early runs
// are neither rewarded nor penalized for an empty ledger.
func NoveltyScore(hasHistory bool, maxSimilarity float64) float64 {
	if !hasHistory {
		return types.NeutralSignal
	}
	return types.ClampScore((1 - maxSimilarity) * 10)
}
