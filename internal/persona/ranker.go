package persona

import (
	"sort"

	"github.com/HendryAvila/hoofctx/internal/retrieval"
)

// Rank reorders results by base score times the persona weight of their
// type, highest first. The base score is the breakdown's final score, else
// the result score, else a positional fallback that preserves input order.
// Ties keep input order. Lists of zero or one result are returned as is.
//
// Ranked results carry the adjusted score; with debug set they also carry
// the base/weight/adjusted triple.
func Rank(results []retrieval.Result, weights Weights, debug bool) []retrieval.Result {
	if len(results) <= 1 {
		return results
	}
	n := float64(len(results))
	out := make([]retrieval.Result, len(results))
	adjusted := make([]float64, len(results))
	for i, r := range results {
		base := (n - float64(i)) / n
		switch {
		case r.Breakdown != nil:
			base = r.Breakdown.Final
		case r.Score != nil:
			base = *r.Score
		}
		weight := weights.For(r.Type)
		adj := base * weight

		r.Score = &adj
		if debug {
			r.Persona = &retrieval.PersonaDebug{Base: base, Weight: weight, Adjusted: adj}
		}
		out[i] = r
		adjusted[i] = adj
	}

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return adjusted[idx[a]] > adjusted[idx[b]] })

	sorted := make([]retrieval.Result, len(out))
	for i, j := range idx {
		sorted[i] = out[j]
	}
	return sorted
}

// TypeWeights reports the weight actually applied to each type present in
// results.
func TypeWeights(results []retrieval.Result, weights Weights) map[string]float64 {
	applied := make(map[string]float64)
	for _, r := range results {
		applied[r.Type] = weights.For(r.Type)
	}
	return applied
}
