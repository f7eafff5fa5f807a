package privacy

import (
	"fmt"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"go.uber.org/zap"
)

// Match is a candidate detection. Start and End are rune offsets into the
// scanned text, End exclusive.
type Match struct {
	Value      string
	Type       EntityType
	Start      int
	End        int
	Confidence float64
	Pattern    string
}

// Len returns the span length in runes.
func (m Match) Len() int { return m.End - m.Start }

// scanText is a text prepared for matching. offsets maps each rune index to
// its byte offset in src, with len(src) appended. An invalid UTF-8 byte
// counts as one rune, so slicing src never rewrites it.
type scanText struct {
	src     string
	runes   []rune
	offsets []int
}

func newScanText(src string) scanText {
	runes := make([]rune, 0, len(src))
	offsets := make([]int, 0, len(src)+1)
	for i, r := range src {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(src))
	return scanText{src: src, runes: runes, offsets: offsets}
}

// slice returns the original bytes between rune offsets start and end.
func (t scanText) slice(start, end int) string {
	return t.src[t.offsets[start]:t.offsets[end]]
}

// Detector runs every enabled pattern over a text and collects candidates.
// The enabled set is fixed at construction.
type Detector struct {
	patterns      []*Pattern
	enabled       map[EntityType]bool
	minConfidence float64
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

// NewDetector creates a detector over reg. The detectors list accepts "all"
// or entity type names; disabled removes types after that.
func NewDetector(reg *Registry, cfg config.PrivacyConfig, log *logger.Logger, m *metrics.Metrics) (*Detector, error) {
	d := &Detector{
		patterns:      reg.Patterns(),
		enabled:       make(map[EntityType]bool),
		minConfidence: cfg.MinConfidence,
		logger:        log,
		metrics:       m,
	}

	if err := d.configureDetectors(cfg.Detectors, cfg.DisabledDetectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Privacy detector initialized",
		zap.Int("total_patterns", len(d.patterns)),
		zap.Int("enabled_patterns", d.countEnabledPatterns()),
		zap.Float64("min_confidence", d.minConfidence),
	)

	return d, nil
}

func (d *Detector) configureDetectors(detectors, disabled []string) error {
	for _, name := range detectors {
		if name == "all" {
			for _, p := range d.patterns {
				d.enabled[p.Type] = true
			}
			continue
		}

		t, err := ParseEntityType(name)
		if err != nil {
			return err
		}
		d.enabled[t] = true
	}

	for _, name := range disabled {
		t, err := ParseEntityType(name)
		if err != nil {
			return err
		}
		delete(d.enabled, t)
	}

	return nil
}

// Detect scans text with every enabled pattern. Candidates may overlap and
// are returned in pattern order, then position order.
func (d *Detector) Detect(text string) []Match {
	return d.detect(newScanText(text))
}

func (d *Detector) detect(text scanText) []Match {
	var matches []Match

	for _, p := range d.patterns {
		if !d.enabled[p.Type] || p.Confidence < d.minConfidence {
			continue
		}

		m, err := p.re.FindRunesMatch(text.runes)
		for m != nil && err == nil {
			if m.Length > 0 {
				value := text.slice(m.Index, m.Index+m.Length)
				if p.Validator == nil || p.Validator(value) {
					matches = append(matches, Match{
						Value:      value,
						Type:       p.Type,
						Start:      m.Index,
						End:        m.Index + m.Length,
						Confidence: p.Confidence,
						Pattern:    p.Name,
					})
				} else {
					d.metrics.RecordRejected(string(p.Type))
				}
			}
			m, err = p.re.FindNextMatch(m)
		}
		if err != nil {
			d.logger.Warn("Pattern scan aborted",
				zap.String("pattern", p.Name),
				zap.String("entity_type", string(p.Type)),
				zap.Error(err),
			)
		}
	}

	return matches
}

// EnabledTypes returns the entity types this detector scans for.
func (d *Detector) EnabledTypes() []EntityType {
	var types []EntityType
	for _, t := range AllEntityTypes() {
		if d.enabled[t] {
			types = append(types, t)
		}
	}
	return types
}

func (d *Detector) countEnabledPatterns() int {
	count := 0
	for _, p := range d.patterns {
		if d.enabled[p.Type] && p.Confidence >= d.minConfidence {
			count++
		}
	}
	return count
}
