package rank

import "sort"

// Candidate pairs a cluster id with its cheap heuristic score, the only
// input the enrichment budget policy looks at.
type Candidate struct {
	ID        int
	Heuristic float64
}

// Allocate splits candidates into the heavy and light generation tiers:
// the top k by heuristic score go heavy, the rest light. Ties break by id
// ascending so the split is deterministic for identical scores. k <= 0
// sends everything to the light tier.
func Allocate(candidates []Candidate, k int) (heavy, light []int) {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Heuristic != sorted[j].Heuristic {
			return sorted[i].Heuristic > sorted[j].Heuristic
		}
		return sorted[i].ID < sorted[j].ID
	})

	for i, c := range sorted {
		if i < k {
			heavy = append(heavy, c.ID)
		} else {
			light = append(light, c.ID)
		}
	}
	return heavy, light
}
