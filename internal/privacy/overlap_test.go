package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(name string, start, end int, conf float64) Match {
	return Match{Value: name, Type: EntityCustom, Start: start, End: end, Confidence: conf, Pattern: name}
}

func patternNames(ms []Match) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Pattern
	}
	return names
}

func TestResolveOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Match
		want       []string
	}{
		{
			name:       "empty",
			candidates: nil,
			want:       []string{},
		},
		{
			name:       "higher confidence beats longer span",
			candidates: []Match{match("long", 0, 10, 0.80), match("short", 2, 5, 0.95)},
			want:       []string{"short"},
		},
		{
			name:       "longer span wins on equal confidence",
			candidates: []Match{match("short", 2, 5, 0.90), match("long", 0, 10, 0.90)},
			want:       []string{"long"},
		},
		{
			name:       "later start wins full tie",
			candidates: []Match{match("left", 0, 4, 0.90), match("right", 2, 6, 0.90)},
			want:       []string{"right"},
		},
		{
			name:       "identical spans keep the first",
			candidates: []Match{match("first", 3, 8, 0.90), match("second", 3, 8, 0.90)},
			want:       []string{"first"},
		},
		{
			name:       "adjacent spans both survive",
			candidates: []Match{match("b", 5, 9, 0.50), match("a", 0, 5, 0.90)},
			want:       []string{"a", "b"},
		},
		{
			name: "accepted set ordered by start",
			candidates: []Match{
				match("c", 20, 25, 0.95),
				match("a", 0, 3, 0.40),
				match("b", 10, 12, 0.80),
				match("b-loser", 11, 15, 0.70),
			},
			want: []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveOverlaps(tt.candidates)
			names := patternNames(got)
			if len(tt.want) == 0 {
				assert.Empty(t, names)
				return
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestResolveOverlaps_NoPositionClaimedTwice(t *testing.T) {
	candidates := []Match{
		match("a", 0, 8, 0.85),
		match("b", 4, 12, 0.90),
		match("c", 10, 14, 0.85),
		match("d", 13, 20, 0.50),
		match("e", 0, 20, 0.40),
	}

	got := resolveOverlaps(candidates)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].End, got[i].Start, "spans %v and %v overlap", got[i-1], got[i])
	}
	assert.Equal(t, []string{"b", "d"}, patternNames(got))
}

func TestAllocator_RightmostFirst(t *testing.T) {
	text := newScanText("a@x.io then b@y.io then a@x.io")
	matches := []Match{
		{Value: "a@x.io", Type: EntityEmail, Start: 0, End: 6, Confidence: 0.95},
		{Value: "b@y.io", Type: EntityEmail, Start: 12, End: 18, Confidence: 0.95},
		{Value: "a@x.io", Type: EntityEmail, Start: 24, End: 30, Confidence: 0.95},
	}

	alloc := newAllocator()
	out := alloc.rewrite(text, matches)

	assert.Equal(t, "[EMAIL_1] then [EMAIL_2] then [EMAIL_1]", out)
	require.Len(t, alloc.mappings, 2)
	assert.Equal(t, "[EMAIL_1]", alloc.mappings[0].Placeholder)
	assert.Equal(t, 24, alloc.mappings[0].Entity.Start, "first recorded occurrence is the rightmost")
	assert.Equal(t, "b@y.io", alloc.mappings[1].Entity.OriginalValue)
}

func TestAllocator_CountersPerType(t *testing.T) {
	text := newScanText("Küche Bad x@y.de")
	matches := []Match{
		{Value: "Küche", Type: EntityHomeRoom, Start: 0, End: 5},
		{Value: "Bad", Type: EntityHomeRoom, Start: 6, End: 9},
		{Value: "x@y.de", Type: EntityEmail, Start: 10, End: 16},
	}

	out := newAllocator().rewrite(text, matches)
	assert.Equal(t, "[ROOM_2] [ROOM_1] [EMAIL_1]", out)
}
