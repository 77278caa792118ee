package rank

import (
	"sort"

	"github.com/nmery/needscan/internal/types"
	"github.com/nmery/needscan/internal/vec"
)

// Item is one candidate for diversity reranking.
type Item struct {
	ID        int
	Relevance float64
	Embedding []float64
	Sector    types.Sector
}

// Selection is a reranked item with its position and the composite MMR
// score it was selected at.
type Selection struct {
	Item
	MMRRank int
	Score   float64
}

// normalizeRelevance min-max scales relevance onto [0,1] so the lambda
// trade-off is meaningful regardless of the raw score range. A constant
// input maps everything to 1.0.
func normalizeRelevance(items []Item) []float64 {
	out := make([]float64, len(items))
	if len(items) == 0 {
		return out
	}
	min, max := items[0].Relevance, items[0].Relevance
	for _, it := range items[1:] {
		if it.Relevance < min {
			min = it.Relevance
		}
		if it.Relevance > max {
			max = it.Relevance
		}
	}
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, it := range items {
		out[i] = (it.Relevance - min) / (max - min)
	}
	return out
}

// byRelevance returns item indexes ordered by relevance descending, ties by
// id ascending.
func byRelevance(items []Item) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := items[idx[a]], items[idx[b]]
		if ia.Relevance != ib.Relevance {
			return ia.Relevance > ib.Relevance
		}
		return ia.ID < ib.ID
	})
	return idx
}

// Rerank greedily selects up to topK items maximizing
// lambda*relevance - (1-lambda)*maxSimilarityToSelected, assigning MMRRank
// in selection order. Ties break by higher raw relevance, then lower id.
// topK >= len(items) degenerates to a pure relevance ordering with no
// similarity penalty, and topK <= 0 selects nothing.
func Rerank(items []Item, topK int, lambda float64) []Selection {
	if topK <= 0 || len(items) == 0 {
		return nil
	}

	rel := normalizeRelevance(items)

	if topK >= len(items) {
		out := make([]Selection, 0, len(items))
		for rank, i := range byRelevance(items) {
			// Score stays on the lambda*relevance scale so sector-bucket
			// results merge cleanly with greedy selections.
			out = append(out, Selection{Item: items[i], MMRRank: rank + 1, Score: lambda * rel[i]})
		}
		return out
	}

	selected := make([]Selection, 0, topK)
	selectedEmb := make([][]float64, 0, topK)
	remaining := make(map[int]bool, len(items))
	for i := range items {
		remaining[i] = true
	}

	for len(selected) < topK && len(remaining) > 0 {
		best := -1
		bestScore := 0.0
		for i := range items {
			if !remaining[i] {
				continue
			}
			score := lambda * rel[i]
			if len(selectedEmb) > 0 {
				score -= (1 - lambda) * vec.MaxCosine(items[i].Embedding, selectedEmb)
			}
			if best == -1 || score > bestScore ||
				(score == bestScore && moreRelevant(items[i], items[best])) {
				best = i
				bestScore = score
			}
		}
		delete(remaining, best)
		selected = append(selected, Selection{
			Item:    items[best],
			MMRRank: len(selected) + 1,
			Score:   bestScore,
		})
		selectedEmb = append(selectedEmb, items[best].Embedding)
	}
	return selected
}

func moreRelevant(a, b Item) bool {
	if a.Relevance != b.Relevance {
		return a.Relevance > b.Relevance
	}
	return a.ID < b.ID
}

// RerankBySector runs MMR independently inside each sector bucket with a
// per-sector cap, then merges the winners and re-sorts by composite MMR
// score. This keeps a dominant sector from crowding out the rest even when
// it wins on relevance alone.
func RerankBySector(items []Item, topK, perSector int, lambda float64) []Selection {
	if topK <= 0 || len(items) == 0 {
		return nil
	}
	if perSector < 1 {
		perSector = 1
	}

	buckets := make(map[types.Sector][]Item)
	for _, it := range items {
		buckets[it.Sector] = append(buckets[it.Sector], it)
	}

	var merged []Selection
	for _, bucket := range buckets {
		merged = append(merged, Rerank(bucket, perSector, lambda)...)
	}

	sort.Slice(merged, func(a, b int) bool {
		if merged[a].Score != merged[b].Score {
			return merged[a].Score > merged[b].Score
		}
		if merged[a].Relevance != merged[b].Relevance {
			return merged[a].Relevance > merged[b].Relevance
		}
		return merged[a].ID < merged[b].ID
	})

	if len(merged) > topK {
		merged = merged[:topK]
	}
	for i := range merged {
		merged[i].MMRRank = i + 1
	}
	return merged
}
