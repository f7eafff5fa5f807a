package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/requestctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/raaihank/llm-veil/internal/tools")

// ErrServerUnavailable is returned when a tool's server has no live session.
var ErrServerUnavailable = errors.New("tool server not available")

var defaultInputSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tool is what a language model sees: a named function taking a JSON object
// and returning text.
type Tool interface {
	Name() string
	Server() string
	Description() string
	InputSchema() json.RawMessage
	// Call runs the tool with JSON arguments. Failures are reported as text
	// so they can be handed back to the model.
	Call(ctx context.Context, input string) string
}

// ToolError reports a failed invocation. Its message never contains values
// that were anonymized for the request.
type ToolError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string { return fmt.Sprintf("tool %s: %s", e.Tool, e.Message) }

func (e *ToolError) Unwrap() error { return e.Err }

// Callback binds one MCP tool to the request scope: arguments are restored
// to their original values before the call and the response is masked again
// before it is returned.
type Callback struct {
	name    string
	server  string
	tool    *mcp.Tool
	catalog Catalog
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
}

var _ Tool = (*Callback)(nil)

func (c *Callback) Name() string { return c.name }

func (c *Callback) Server() string { return c.server }

func (c *Callback) Description() string { return c.tool.Description }

// InputSchema returns the tool's JSON schema, or an empty object schema when
// the server declares none.
func (c *Callback) InputSchema() json.RawMessage {
	if c.tool.InputSchema == nil {
		return defaultInputSchema
	}
	raw, err := json.Marshal(c.tool.InputSchema)
	if err != nil || string(raw) == "null" {
		return defaultInputSchema
	}
	return raw
}

func (c *Callback) Call(ctx context.Context, input string) string {
	args, err := ParseArguments(input)
	if err != nil {
		return "Error calling tool: " + err.Error()
	}

	out, err := c.Invoke(ctx, args)
	if err != nil {
		if errors.Is(err, ErrServerUnavailable) {
			return "Error: " + err.Error()
		}
		return "Error calling tool: " + err.Error()
	}
	return out
}

// Invoke calls the tool with args and returns its text output. Every call is
// recorded on the request scope found in ctx, if any.
func (c *Callback) Invoke(ctx context.Context, args Value) (string, error) {
	ctx, span := tracer.Start(ctx, "tools.Invoke", trace.WithAttributes(
		attribute.String("tool.server", c.server),
		attribute.String("tool.name", c.tool.Name),
	))
	defer span.End()

	scope := requestctx.FromContext(ctx)
	result := scope.Result()
	start := time.Now()

	caller, ok := c.catalog.Caller(c.server)
	if !ok {
		err := &ToolError{Tool: c.name, Message: fmt.Sprintf("%s: %s", ErrServerUnavailable, c.server), Err: ErrServerUnavailable}
		c.track(scope, start, err.Message)
		span.SetStatus(codes.Error, err.Message)
		return "", err
	}

	if result.HasAnonymizedEntities() {
		args = Deanonymize(args, result)
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := caller.CallTool(callCtx, &mcp.CallToolParams{Name: c.tool.Name, Arguments: args.Any()})
	if err != nil {
		masked := result.AnonymizeWithExistingMappings(err.Error())
		c.track(scope, start, masked)
		span.SetStatus(codes.Error, masked)
		return "", &ToolError{Tool: c.name, Message: masked, Err: err}
	}

	text := renderResult(res, result)
	if res.IsError {
		c.track(scope, start, text)
		span.SetStatus(codes.Error, "tool reported an error")
	} else {
		c.track(scope, start, "")
	}
	return text, nil
}

func (c *Callback) track(scope *requestctx.Scope, start time.Time, errMsg string) {
	call := requestctx.ToolCall{
		Server:   c.server,
		Tool:     c.tool.Name,
		Duration: time.Since(start),
		Error:    errMsg,
	}
	c.metrics.RecordToolCall(c.name, call.Duration, errMsg != "")

	if err := scope.Record(call); err != nil {
		c.logger.Warn("Tool call not recorded", zap.String("tool", c.name), zap.Error(err))
	}
}

// renderResult masks and joins the text content of a tool response. When
// the response carries only structured content, that is rendered as JSON.
func renderResult(res *mcp.CallToolResult, result *privacy.Result) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			tc.Text = result.AnonymizeWithExistingMappings(tc.Text)
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if raw, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, result.AnonymizeWithExistingMappings(string(raw)))
		}
	}
	return strings.Join(parts, "\n")
}
