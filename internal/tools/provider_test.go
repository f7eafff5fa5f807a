package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func names(callbacks []Tool) []string {
	out := make([]string, len(callbacks))
	for i, cb := range callbacks {
		out[i] = cb.Name()
	}
	return out
}

func TestProvider_CachesUntilTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	catalog := &stubCatalog{tools: map[string][]*mcp.Tool{"home": {{Name: "lights"}}}}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Minute}, logger.NewNop(), WithClock(clock.Now))

	ctx := context.Background()
	first, err := p.Callbacks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lights"}, names(first))

	clock.Advance(30 * time.Second)
	_, err = p.Callbacks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, catalog.lists.Load())

	clock.Advance(31 * time.Second)
	_, err = p.Callbacks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, catalog.lists.Load())
}

func TestProvider_Invalidate(t *testing.T) {
	catalog := &stubCatalog{tools: map[string][]*mcp.Tool{"home": {{Name: "lights"}}}}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	ctx := context.Background()
	_, err := p.Callbacks(ctx)
	require.NoError(t, err)

	catalog.tools = map[string][]*mcp.Tool{"home": {{Name: "lights"}, {Name: "blinds"}}}
	cached, err := p.Callbacks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lights"}, names(cached))

	p.Invalidate()
	fresh, err := p.Callbacks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lights", "blinds"}, names(fresh))
}

func TestProvider_FailedRebuildKeepsNothingCached(t *testing.T) {
	catalog := &stubCatalog{err: errors.New("boom")}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	_, err := p.Callbacks(context.Background())
	require.Error(t, err)

	catalog.err = nil
	catalog.tools = map[string][]*mcp.Tool{"home": {{Name: "lights"}}}
	callbacks, err := p.Callbacks(context.Background())
	require.NoError(t, err)
	assert.Len(t, callbacks, 1)
}

func TestProvider_ConcurrentReadersRebuildOnce(t *testing.T) {
	catalog := &stubCatalog{tools: map[string][]*mcp.Tool{"home": {{Name: "lights"}}}}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callbacks, err := p.Callbacks(context.Background())
			assert.NoError(t, err)
			assert.Len(t, callbacks, 1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, catalog.lists.Load())
}

func TestProvider_DuplicateNamesAreQualified(t *testing.T) {
	catalog := &stubCatalog{tools: map[string][]*mcp.Tool{
		"home":   {{Name: "status"}},
		"garden": {{Name: "status"}, {Name: ""}},
	}}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	callbacks, err := p.Callbacks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "home_status"}, names(callbacks))
	assert.Equal(t, "garden", callbacks[0].Server())
}

func TestProvider_ReturnsCopies(t *testing.T) {
	catalog := &stubCatalog{tools: map[string][]*mcp.Tool{"home": {{Name: "lights"}}}}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	first, err := p.Callbacks(context.Background())
	require.NoError(t, err)
	first[0] = nil

	second, err := p.Callbacks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, second[0])
}

func TestLoggingSource(t *testing.T) {
	catalog := &stubCatalog{
		tools: map[string][]*mcp.Tool{"home": {{Name: "lights"}}},
		caller: callerFunc(func(context.Context, *mcp.CallToolParams) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "on"}}}, nil
		}),
	}
	p := NewProvider(catalog, config.ToolsConfig{CacheTTL: time.Hour}, logger.NewNop())

	for _, payloads := range []bool{false, true} {
		core, logs := observer.New(zapcore.DebugLevel)
		src := NewLoggingSource(p, &logger.Logger{Logger: zap.New(core)}, payloads)

		callbacks, err := src.Callbacks(context.Background())
		require.NoError(t, err)
		require.Len(t, callbacks, 1)
		assert.Equal(t, "on", callbacks[0].Call(context.Background(), `{"room":"[ROOM_1]"}`))

		finished := logs.FilterMessage("Tool call finished").All()
		require.Len(t, finished, 1)
		fields := finished[0].ContextMap()
		assert.Equal(t, "lights", fields["tool"])
		assert.EqualValues(t, 2, fields["output_bytes"])
		if payloads {
			assert.Equal(t, `{"room":"[ROOM_1]"}`, fields["input"])
			assert.Equal(t, "on", fields["output"])
		} else {
			assert.NotContains(t, fields, "input")
			assert.NotContains(t, fields, "output")
		}
	}
}
