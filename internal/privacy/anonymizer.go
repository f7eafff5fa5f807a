package privacy

import (
	"context"
	"fmt"
	"time"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/raaihank/llm-veil/internal/privacy")

// Anonymizer runs the detect, resolve, allocate pipeline. It holds no
// per-run state and may be shared between goroutines.
type Anonymizer struct {
	enabled  bool
	detector *Detector
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// New builds an anonymizer with the default pattern set.
func New(cfg config.PrivacyConfig, log *logger.Logger, m *metrics.Metrics) (*Anonymizer, error) {
	reg, err := Compile(DefaultPatterns(), cfg.MatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to compile patterns: %w", err)
	}
	return NewWithRegistry(reg, cfg, log, m)
}

// NewWithRegistry builds an anonymizer over a custom registry.
func NewWithRegistry(reg *Registry, cfg config.PrivacyConfig, log *logger.Logger, m *metrics.Metrics) (*Anonymizer, error) {
	log = log.WithComponent("anonymizer")
	detector, err := NewDetector(reg, cfg, log, m)
	if err != nil {
		return nil, err
	}
	return &Anonymizer{
		enabled:  cfg.Enabled,
		detector: detector,
		logger:   log,
		metrics:  m,
	}, nil
}

// Anonymize replaces every detected entity in text with a placeholder and
// returns the mapping needed to reverse it. Empty input and a disabled
// anonymizer yield a result without entities.
func (a *Anonymizer) Anonymize(ctx context.Context, text string) *Result {
	if text == "" || !a.enabled {
		return NewResult(text, text, nil)
	}

	_, span := tracer.Start(ctx, "privacy.Anonymize")
	defer span.End()
	start := time.Now()

	scan := newScanText(text)
	candidates := a.detector.detect(scan)
	accepted := resolveOverlaps(candidates)

	alloc := newAllocator()
	anonymized := text
	if len(accepted) > 0 {
		anonymized = alloc.rewrite(scan, accepted)
	}
	result := NewResult(text, anonymized, alloc.mappings)

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int("privacy.text_length", len(scan.runes)),
		attribute.Int("privacy.candidates", len(candidates)),
		attribute.Int("privacy.entities", result.EntityCount()),
	)

	types := make([]string, 0, len(alloc.mappings))
	for _, m := range alloc.mappings {
		types = append(types, string(m.Entity.Type))
	}
	a.metrics.RecordAnonymization(elapsed, types)

	if result.HasAnonymizedEntities() {
		a.logger.Debug("Text anonymized",
			zap.Int("candidates", len(candidates)),
			zap.Int("accepted", len(accepted)),
			zap.Int("entities", result.EntityCount()),
			zap.Duration("duration", elapsed),
		)
	}

	return result
}

// Enabled reports whether anonymization is active.
func (a *Anonymizer) Enabled() bool { return a.enabled }

// EnabledTypes returns the entity types the anonymizer scans for.
func (a *Anonymizer) EnabledTypes() []EntityType { return a.detector.EnabledTypes() }

// PatternCount returns the number of active pattern definitions.
func (a *Anonymizer) PatternCount() int { return a.detector.countEnabledPatterns() }
