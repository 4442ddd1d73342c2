package scoring

import "sort"

// Rank orders candidates for admission: descending combined score, ties broken
// by descending confidence, then descending urgency, then ascending instrument
// ID. The chain is total, so ranking is fully deterministic for testability.
// The input slice is not mutated.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		return a.Instrument < b.Instrument
	})
	return ranked
}
