package tools

import (
	"context"
	"time"

	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/requestctx"
	"go.uber.org/zap"
)

// LoggingSource wraps every tool of a source so that each call is logged.
// Payloads are the model-facing, masked arguments and output; they are only
// logged when payloads is set.
type LoggingSource struct {
	next     Source
	logger   *logger.Logger
	payloads bool
}

// NewLoggingSource decorates next.
func NewLoggingSource(next Source, log *logger.Logger, payloads bool) *LoggingSource {
	return &LoggingSource{next: next, logger: log.WithComponent("tool-calls"), payloads: payloads}
}

func (s *LoggingSource) Callbacks(ctx context.Context) ([]Tool, error) {
	callbacks, err := s.next.Callbacks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Tool, len(callbacks))
	for i, cb := range callbacks {
		out[i] = &loggedTool{Tool: cb, source: s}
	}
	return out, nil
}

type loggedTool struct {
	Tool
	source *LoggingSource
}

func (t *loggedTool) Call(ctx context.Context, input string) string {
	log := t.source.logger.WithRequestID(requestctx.FromContext(ctx).ID())
	fields := []zap.Field{
		zap.String("tool", t.Name()),
		zap.String("server", t.Server()),
		zap.Int("input_bytes", len(input)),
	}
	if t.source.payloads {
		fields = append(fields, zap.String("input", input))
	}
	log.Debug("Tool call started", fields...)

	start := time.Now()
	output := t.Tool.Call(ctx, input)

	fields = append(fields,
		zap.Duration("duration", time.Since(start)),
		zap.Int("output_bytes", len(output)),
	)
	if t.source.payloads {
		fields = append(fields, zap.String("output", output))
	}
	log.Info("Tool call finished", fields...)
	return output
}
