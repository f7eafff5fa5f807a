// Package assistant runs one chat request end to end: the query is
// anonymized, the generator only ever sees placeholders, tool calls are
// translated through the request scope and the final reply is restored.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/requestctx"
	"github.com/raaihank/llm-veil/internal/tools"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 5000

var (
	ErrEmptyQuery   = errors.New("query must not be blank")
	ErrQueryTooLong = fmt.Errorf("query must not exceed %d characters", MaxQueryLength)
	ErrNoGenerator  = errors.New("no generator configured")
	ErrNoAnonymizer = errors.New("no anonymizer configured")
)

var tracer = otel.Tracer("github.com/raaihank/llm-veil/internal/assistant")

// Generator produces a reply for an anonymized prompt. It may call any of
// the given tools with the context it received.
type Generator interface {
	Generate(ctx context.Context, prompt string, tools []tools.Tool) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, tools []tools.Tool) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, tools []tools.Tool) (string, error) {
	return f(ctx, prompt, tools)
}

// Reply is the outcome of one request. It carries entity types and counts
// but no original values besides the restored response itself.
type Reply struct {
	RequestID          string                `json:"request_id"`
	Response           string                `json:"response"`
	AnonymizedEntities int                   `json:"anonymized_entities"`
	EntityTypes        []privacy.EntityType  `json:"entity_types"`
	Findings           []privacy.Finding     `json:"findings"`
	ToolsUsed          []string              `json:"tools_used"`
	ToolCalls          []requestctx.ToolCall `json:"tool_calls"`
	Duration           time.Duration         `json:"duration"`
}

// Service processes chat requests.
type Service struct {
	anonymizer atomic.Pointer[privacy.Anonymizer]
	generator  Generator
	tools      tools.Source
	strict     bool
	logger     *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTools offers the tools of src to the generator.
func WithTools(src tools.Source) Option {
	return func(s *Service) { s.tools = src }
}

// WithStrictContext makes any use of a released request scope panic.
func WithStrictContext(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// NewService creates a service. generator may be nil, in which case only
// anonymization is available.
func NewService(anonymizer *privacy.Anonymizer, generator Generator, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		generator: generator,
		logger:    log.WithComponent("assistant"),
	}
	s.anonymizer.Store(anonymizer)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Anonymizer returns the current anonymizer.
func (s *Service) Anonymizer() *privacy.Anonymizer {
	return s.anonymizer.Load()
}

// SetAnonymizer swaps the anonymizer used by requests started afterwards.
func (s *Service) SetAnonymizer(a *privacy.Anonymizer) {
	if a != nil {
		s.anonymizer.Store(a)
	}
}

// HasGenerator reports whether chat requests can be served.
func (s *Service) HasGenerator() bool {
	return s.generator != nil
}

// Process answers query. requestID may be empty, in which case one is
// generated.
func (s *Service) Process(ctx context.Context, requestID, query string) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, ErrQueryTooLong
	}
	if s.generator == nil {
		return nil, ErrNoGenerator
	}
	anonymizer := s.anonymizer.Load()
	if anonymizer == nil {
		return nil, ErrNoAnonymizer
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "assistant.Process")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	log := s.logger.WithRequestID(requestID)
	start := time.Now()

	result := anonymizer.Anonymize(ctx, query)
	reply := &Reply{
		RequestID:          requestID,
		AnonymizedEntities: result.EntityCount(),
		EntityTypes:        result.DetectedEntityTypes(),
		Findings:           result.Findings(),
	}
	log.Info("Processing request",
		zap.Int("entities", reply.AnonymizedEntities),
		zap.Int("query_length", utf8.RuneCountInString(query)),
	)

	err := requestctx.Run(ctx, requestID, s.strict, result, func(ctx context.Context, scope *requestctx.Scope) error {
		callbacks := s.callbacks(ctx, log)

		out, err := s.generator.Generate(ctx, result.AnonymizedText(), callbacks)
		if err != nil {
			return fmt.Errorf("failed to generate reply: %w", err)
		}
		reply.Response = result.Deanonymize(out)
		reply.ToolCalls = scope.ToolCalls()
		return nil
	})
	reply.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Request failed", zap.Error(err), zap.Duration("duration", reply.Duration))
		return nil, err
	}

	reply.ToolsUsed = toolNames(reply.ToolCalls)
	span.SetAttributes(
		attribute.Int("entities", reply.AnonymizedEntities),
		attribute.Int("tool_calls", len(reply.ToolCalls)),
	)
	log.Info("Request completed",
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Duration("duration", reply.Duration),
	)
	return reply, nil
}

// callbacks returns the available tools. A failing tool source does not fail
// the request; the generator just gets no tools.
func (s *Service) callbacks(ctx context.Context, log *logger.Logger) []tools.Tool {
	if s.tools == nil {
		return nil
	}
	callbacks, err := s.tools.Callbacks(ctx)
	if err != nil {
		log.Warn("Tools unavailable for request", zap.Error(err))
		return nil
	}
	return callbacks
}

func toolNames(calls []requestctx.ToolCall) []string {
	seen := make(map[string]bool, len(calls))
	var names []string
	for _, call := range calls {
		if !seen[call.Tool] {
			seen[call.Tool] = true
			names = append(names, call.Tool)
		}
	}
	sort.Strings(names)
	return names
}
