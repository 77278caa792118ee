// Package vec provides the small amount of vector math the ranking
// pipeline needs.
package vec

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Mismatched or zero-length vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MaxCosine returns the highest cosine similarity between v and any of the
// candidates, clamped to [0, 1]. An empty candidate set scores 0.
func MaxCosine(v []float64, candidates [][]float64) float64 {
	max := 0.0
	for _, c := range candidates {
		if sim := Cosine(v, c); sim > max {
			max = sim
		}
	}
	if max > 1 {
		max = 1
	}
	return max
}

// Mean returns the element-wise mean of the given vectors. Vectors with a
// dimensionality different from the first are skipped.
func Mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i := range v {
			sum[i] += v[i]
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}
