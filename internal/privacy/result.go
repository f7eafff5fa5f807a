package privacy

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// placeholderToken matches any token in the [PREFIX_n] wire format.
var placeholderToken = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*_[1-9][0-9]*\]`)

// Result is the immutable outcome of one anonymization run. It maps each
// placeholder back to its original value and is the only way to reverse the
// substitution. A nil *Result behaves like a result without entities.
type Result struct {
	originalText   string
	anonymizedText string

	mappings      []Mapping
	byPlaceholder map[string]Entity
	byValue       map[string]string

	restorer  *strings.Replacer
	reapplied []string // original values, longest first
}

// NewResult assembles a result from mappings in allocation order. A repeated
// placeholder keeps its first entity; a repeated value keeps its first
// placeholder.
func NewResult(originalText, anonymizedText string, mappings []Mapping) *Result {
	r := &Result{
		originalText:   originalText,
		anonymizedText: anonymizedText,
		byPlaceholder:  make(map[string]Entity, len(mappings)),
		byValue:        make(map[string]string, len(mappings)),
	}

	pairs := make([]string, 0, 2*len(mappings))
	for _, m := range mappings {
		if _, dup := r.byPlaceholder[m.Placeholder]; dup {
			continue
		}
		r.mappings = append(r.mappings, m)
		r.byPlaceholder[m.Placeholder] = m.Entity
		if _, seen := r.byValue[m.Entity.OriginalValue]; !seen && m.Entity.OriginalValue != "" {
			r.byValue[m.Entity.OriginalValue] = m.Placeholder
			r.reapplied = append(r.reapplied, m.Entity.OriginalValue)
		}
		pairs = append(pairs, m.Placeholder, m.Entity.OriginalValue)
	}
	r.restorer = strings.NewReplacer(pairs...)

	sort.SliceStable(r.reapplied, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(r.reapplied[i]), utf8.RuneCountInString(r.reapplied[j])
		if li != lj {
			return li > lj
		}
		return r.reapplied[i] < r.reapplied[j]
	})

	return r
}

// OriginalText returns the text that was anonymized.
func (r *Result) OriginalText() string {
	if r == nil {
		return ""
	}
	return r.originalText
}

// AnonymizedText returns the text with every entity replaced.
func (r *Result) AnonymizedText() string {
	if r == nil {
		return ""
	}
	return r.anonymizedText
}

// HasAnonymizedEntities reports whether any entity was replaced.
func (r *Result) HasAnonymizedEntities() bool {
	return r != nil && len(r.mappings) > 0
}

// EntityCount returns the number of distinct placeholders.
func (r *Result) EntityCount() int {
	if r == nil {
		return 0
	}
	return len(r.mappings)
}

// DetectedEntityTypes returns the distinct entity types, sorted.
func (r *Result) DetectedEntityTypes() []EntityType {
	if r == nil {
		return nil
	}
	seen := make(map[EntityType]bool)
	var types []EntityType
	for _, m := range r.mappings {
		if !seen[m.Entity.Type] {
			seen[m.Entity.Type] = true
			types = append(types, m.Entity.Type)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Mappings returns placeholder bindings in allocation order.
func (r *Result) Mappings() []Mapping {
	if r == nil {
		return nil
	}
	out := make([]Mapping, len(r.mappings))
	copy(out, r.mappings)
	return out
}

// Entity returns the entity behind a placeholder.
func (r *Result) Entity(placeholder string) (Entity, bool) {
	if r == nil {
		return Entity{}, false
	}
	e, ok := r.byPlaceholder[placeholder]
	return e, ok
}

// OriginalValue returns the value behind a placeholder, or the placeholder
// itself when it is unknown.
func (r *Result) OriginalValue(placeholder string) string {
	if e, ok := r.Entity(placeholder); ok {
		return e.OriginalValue
	}
	return placeholder
}

// Placeholder returns the token assigned to an original value.
func (r *Result) Placeholder(value string) (string, bool) {
	if r == nil {
		return "", false
	}
	p, ok := r.byValue[value]
	return p, ok
}

// Findings groups placeholders by entity type, without original values.
func (r *Result) Findings() []Finding {
	if r == nil {
		return []Finding{}
	}
	index := make(map[EntityType]int)
	findings := make([]Finding, 0)
	for _, m := range r.mappings {
		i, ok := index[m.Entity.Type]
		if !ok {
			i = len(findings)
			index[m.Entity.Type] = i
			findings = append(findings, Finding{EntityType: m.Entity.Type})
		}
		findings[i].Count++
		findings[i].Placeholders = append(findings[i].Placeholders, m.Placeholder)
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].EntityType < findings[j].EntityType })
	return findings
}

// Deanonymize replaces every known placeholder in text with its original
// value. Unknown tokens are left alone.
func (r *Result) Deanonymize(text string) string {
	if !r.HasAnonymizedEntities() || text == "" {
		return text
	}
	return r.restorer.Replace(text)
}

// AnonymizeWithExistingMappings replaces literal occurrences of known
// original values with their placeholders. No detection runs. Longer values
// are replaced first and placeholder tokens already present are never
// rewritten, so applying it twice gives the same text.
func (r *Result) AnonymizeWithExistingMappings(text string) string {
	if !r.HasAnonymizedEntities() || text == "" {
		return text
	}

	segs := splitProtected(text)
	for _, value := range r.reapplied {
		placeholder := r.byValue[value]
		next := make([]segment, 0, len(segs))
		for _, s := range segs {
			if s.protected || !strings.Contains(s.text, value) {
				next = append(next, s)
				continue
			}
			parts := strings.Split(s.text, value)
			for i, part := range parts {
				if i > 0 {
					next = append(next, segment{text: placeholder, protected: true})
				}
				if part != "" {
					next = append(next, segment{text: part})
				}
			}
		}
		segs = next
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String()
}

type segment struct {
	text      string
	protected bool
}

// splitProtected cuts text around existing placeholder tokens.
func splitProtected(text string) []segment {
	locs := placeholderToken.FindAllStringIndex(text, -1)
	segs := make([]segment, 0, 2*len(locs)+1)
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			segs = append(segs, segment{text: text[last:loc[0]]})
		}
		segs = append(segs, segment{text: text[loc[0]:loc[1]], protected: true})
		last = loc[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:]})
	}
	return segs
}
