package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/requestctx"
	"github.com/raaihank/llm-veil/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnonymizer(t *testing.T) *privacy.Anonymizer {
	t.Helper()
	a, err := privacy.New(config.PrivacyConfig{
		Enabled:      true,
		Detectors:    []string{"all"},
		MatchTimeout: 2 * time.Second,
	}, logger.NewNop(), nil)
	require.NoError(t, err)
	return a
}

// mailCatalog offers one tool, send_email, whose server echoes the
// recipient it received.
type mailCatalog struct {
	mu       sync.Mutex
	received []string
}

func (c *mailCatalog) ListTools(context.Context) (map[string][]*mcp.Tool, error) {
	return map[string][]*mcp.Tool{"mail": {{Name: "send_email", Description: "sends an email"}}}, nil
}

func (c *mailCatalog) Caller(string) (tools.Caller, bool) {
	return c, true
}

func (c *mailCatalog) CallTool(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	to, _ := params.Arguments.(map[string]any)["to"].(string)
	c.mu.Lock()
	c.received = append(c.received, to)
	c.mu.Unlock()
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "Mail sent to " + to}}}, nil
}

// toolGenerator calls the first tool with the first placeholder of the
// prompt and replies with the tool output.
type toolGenerator struct {
	mu      sync.Mutex
	prompts []string
	outputs []string
}

func (g *toolGenerator) Generate(ctx context.Context, prompt string, offered []tools.Tool) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if len(offered) == 0 {
		return "No tools available for " + prompt, nil
	}
	start := strings.Index(prompt, "[")
	end := strings.Index(prompt, "]")
	out := offered[0].Call(ctx, `{"to":"`+prompt[start:end+1]+`"}`)

	g.mu.Lock()
	g.outputs = append(g.outputs, out)
	g.mu.Unlock()
	return "Done: " + out, nil
}

func TestProcess_FullRoundTrip(t *testing.T) {
	catalog := &mailCatalog{}
	provider := tools.NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Minute}, logger.NewNop())
	gen := &toolGenerator{}
	svc := NewService(newAnonymizer(t), gen, logger.NewNop(), WithTools(provider))

	reply, err := svc.Process(context.Background(), "req-1", "Contact john.doe@example.com for details")
	require.NoError(t, err)

	// The generator only saw placeholders, the tool server only originals.
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "Contact [EMAIL_1] for details", gen.prompts[0])
	assert.Equal(t, []string{"Mail sent to [EMAIL_1]"}, gen.outputs)
	assert.Equal(t, []string{"john.doe@example.com"}, catalog.received)

	assert.Equal(t, "Done: Mail sent to john.doe@example.com", reply.Response)
	assert.Equal(t, "req-1", reply.RequestID)
	assert.Equal(t, 1, reply.AnonymizedEntities)
	assert.Equal(t, []privacy.EntityType{privacy.EntityEmail}, reply.EntityTypes)
	assert.Equal(t, []string{"send_email"}, reply.ToolsUsed)
	require.Len(t, reply.ToolCalls, 1)
	assert.True(t, reply.ToolCalls[0].Succeeded())
	assert.Equal(t, "mail", reply.ToolCalls[0].Server)
}

func TestProcess_ScopeIsReleasedAfterRequest(t *testing.T) {
	var leaked context.Context
	gen := GeneratorFunc(func(ctx context.Context, prompt string, _ []tools.Tool) (string, error) {
		leaked = ctx
		assert.NotNil(t, requestctx.ActiveResult(ctx))
		return prompt, nil
	})
	svc := NewService(newAnonymizer(t), gen, logger.NewNop())

	reply, err := svc.Process(context.Background(), "", "Contact john.doe@example.com for details")
	require.NoError(t, err)
	assert.NotEmpty(t, reply.RequestID)
	assert.Equal(t, "Contact john.doe@example.com for details", reply.Response)

	assert.True(t, requestctx.FromContext(leaked).Released())
	assert.Nil(t, requestctx.ActiveResult(leaked))
}

func TestProcess_GeneratorError(t *testing.T) {
	boom := errors.New("model offline")
	var leaked context.Context
	gen := GeneratorFunc(func(ctx context.Context, _ string, _ []tools.Tool) (string, error) {
		leaked = ctx
		return "", boom
	})
	svc := NewService(newAnonymizer(t), gen, logger.NewNop())

	_, err := svc.Process(context.Background(), "req-2", "Hallo")
	assert.ErrorIs(t, err, boom)
	assert.True(t, requestctx.FromContext(leaked).Released())
}

func TestProcess_ToolSourceFailureStillAnswers(t *testing.T) {
	gen := &toolGenerator{}
	svc := NewService(newAnonymizer(t), gen, logger.NewNop(), WithTools(failingSource{}))

	reply, err := svc.Process(context.Background(), "req-3", "Contact john.doe@example.com for details")
	require.NoError(t, err)
	assert.Equal(t, "No tools available for Contact john.doe@example.com for details", reply.Response)
	assert.Empty(t, reply.ToolsUsed)
}

type failingSource struct{}

func (failingSource) Callbacks(context.Context) ([]tools.Tool, error) {
	return nil, errors.New("catalog down")
}

func TestProcess_Validation(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, string, []tools.Tool) (string, error) { return "ok", nil })

	tests := []struct {
		name    string
		svc     *Service
		query   string
		wantErr error
	}{
		{"blank", NewService(newAnonymizer(t), gen, logger.NewNop()), "   ", ErrEmptyQuery},
		{"too long", NewService(newAnonymizer(t), gen, logger.NewNop()), strings.Repeat("ä", MaxQueryLength+1), ErrQueryTooLong},
		{"no generator", NewService(newAnonymizer(t), nil, logger.NewNop()), "Hallo", ErrNoGenerator},
		{"no anonymizer", NewService(nil, gen, logger.NewNop()), "Hallo", ErrNoAnonymizer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Process(context.Background(), "", tt.query)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProcess_ConcurrentRequestsStayIsolated(t *testing.T) {
	catalog := &mailCatalog{}
	provider := tools.NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Minute}, logger.NewNop())
	svc := NewService(newAnonymizer(t), &toolGenerator{}, logger.NewNop(), WithTools(provider))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := string(rune('a'+i)) + ".user@example.com"
			reply, err := svc.Process(context.Background(), "", "Contact "+addr+" for details")
			if assert.NoError(t, err) {
				assert.Equal(t, "Done: Mail sent to "+addr, reply.Response)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, catalog.received, 16)
}

func TestSetAnonymizer(t *testing.T) {
	first := newAnonymizer(t)
	svc := NewService(first, nil, logger.NewNop())
	assert.Same(t, first, svc.Anonymizer())
	assert.False(t, svc.HasGenerator())

	second := newAnonymizer(t)
	svc.SetAnonymizer(second)
	assert.Same(t, second, svc.Anonymizer())

	svc.SetAnonymizer(nil)
	assert.Same(t, second, svc.Anonymizer())
}
