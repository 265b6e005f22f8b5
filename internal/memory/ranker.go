package memory

// Ranker drops weak matches before they reach the prompt. It keeps the
// store's order; only matches below MinSimilarity are removed.
type Ranker struct {
	MinSimilarity float64
}

// NewRanker creates a Ranker. A threshold of 0 keeps every match.
func NewRanker(minSimilarity float64) *Ranker {
	return &Ranker{MinSimilarity: minSimilarity}
}

// Filter returns the matches whose similarity reaches the threshold.
func (r *Ranker) Filter(matches []Match) []Match {
	if r == nil || r.MinSimilarity <= 0 {
		return matches
	}
	out := matches[:0:0]
	for _, m := range matches {
		if m.Similarity() >= r.MinSimilarity {
			out = append(out, m)
		}
	}
	return out
}
