package privacy

import "strings"

// allocator hands out placeholders for a single anonymization run. A new
// allocator is created per run, so indices never carry over between calls.
type allocator struct {
	counters map[EntityType]int
	byValue  map[string]string
	mappings []Mapping
}

func newAllocator() *allocator {
	return &allocator{
		counters: make(map[EntityType]int),
		byValue:  make(map[string]string),
	}
}

// placeholderFor returns the token for m, reusing the token of an identical
// value seen earlier in the run. Only the first occurrence is recorded.
func (a *allocator) placeholderFor(m Match) string {
	if p, ok := a.byValue[m.Value]; ok {
		return p
	}

	a.counters[m.Type]++
	p := m.Type.Placeholder(a.counters[m.Type])
	a.byValue[m.Value] = p
	a.mappings = append(a.mappings, Mapping{
		Placeholder: p,
		Entity: Entity{
			OriginalValue: m.Value,
			Type:          m.Type,
			Start:         m.Start,
			End:           m.End,
			Confidence:    m.Confidence,
		},
	})
	return p
}

// rewrite replaces every accepted span in text. Placeholders are allocated
// from the rightmost match to the leftmost; matches must be sorted by start
// and must not overlap.
func (a *allocator) rewrite(text scanText, matches []Match) string {
	tokens := make([]string, len(matches))
	for i := len(matches) - 1; i >= 0; i-- {
		tokens[i] = a.placeholderFor(matches[i])
	}

	var b strings.Builder
	b.Grow(len(text.src))
	last := 0
	for i, m := range matches {
		b.WriteString(text.slice(last, m.Start))
		b.WriteString(tokens[i])
		last = m.End
	}
	b.WriteString(text.src[text.offsets[last]:])
	return b.String()
}
