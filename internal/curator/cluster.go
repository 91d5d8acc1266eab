package curator

import (
	"math"
	"sort"
)

// Clustering parameters. Cleanup clusters tightly enough to merge
// rephrasings of the same question; topic suggestion clusters loosely to
// surface broader themes.
const (
	CleanupMinCommunity = 15
	CleanupThreshold    = 0.55
	SuggestMinCommunity = 9
	SuggestThreshold    = 0.66
)

// cosineSimilarity returns the cosine of the angle between two embedding
// vectors, or 0 when either vector is degenerate.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// communities finds groups of mutually similar embeddings. A point seeds
// a candidate community when at least minSize neighbors (itself included)
// score at or above threshold; candidates are then accepted largest first
// with already-claimed members removed, and a candidate that shrinks
// below minSize is discarded. Each returned community lists member
// indices with the seed first.
func communities(vectors [][]float32, minSize int, threshold float64) [][]int {
	n := len(vectors)
	if n == 0 || minSize < 1 {
		return nil
	}

	type candidate struct {
		seed    int
		members []int
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		neighbors := []int{i}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if cosineSimilarity(vectors[i], vectors[j]) >= threshold {
				neighbors = append(neighbors, j)
			}
		}
		if len(neighbors) >= minSize {
			// Order non-seed members by similarity so overlap trimming
			// keeps the closest ones.
			sort.SliceStable(neighbors[1:], func(a, b int) bool {
				sa := cosineSimilarity(vectors[i], vectors[neighbors[1+a]])
				sb := cosineSimilarity(vectors[i], vectors[neighbors[1+b]])
				return sa > sb
			})
			candidates = append(candidates, candidate{seed: i, members: neighbors})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return len(candidates[a].members) > len(candidates[b].members)
	})

	claimed := make(map[int]bool, n)
	var result [][]int
	for _, c := range candidates {
		if claimed[c.seed] {
			continue
		}
		members := make([]int, 0, len(c.members))
		for _, idx := range c.members {
			if !claimed[idx] {
				members = append(members, idx)
			}
		}
		if len(members) < minSize {
			continue
		}
		for _, idx := range members {
			claimed[idx] = true
		}
		result = append(result, members)
	}

	return result
}
