package utils

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 if vectors have different lengths, are empty, or either has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopKIndicesByScore returns the indices of the k highest scores, best first.
// Ties keep their original order. A non-positive k returns every index.
func TopKIndicesByScore(scores []float64, k int) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]] > scores[indices[b]]
	})
	if k > 0 && k < len(indices) {
		indices = indices[:k]
	}
	return indices
}
