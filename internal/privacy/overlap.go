package privacy

import "sort"

// resolveOverlaps keeps a non-overlapping subset of candidates. Higher
// confidence wins, then the longer span, then the later start. Candidates
// that still tie keep their detection order. The result is ordered by start.
func resolveOverlaps(candidates []Match) []Match {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]Match, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Start > b.Start
	})

	maxEnd := 0
	for _, m := range ordered {
		if m.End > maxEnd {
			maxEnd = m.End
		}
	}
	claimed := make([]bool, maxEnd)

	accepted := make([]Match, 0, len(ordered))
	for _, m := range ordered {
		if spanClaimed(claimed, m) {
			continue
		}
		for i := m.Start; i < m.End; i++ {
			claimed[i] = true
		}
		accepted = append(accepted, m)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

func spanClaimed(claimed []bool, m Match) bool {
	for i := m.Start; i < m.End; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}
