package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"go.uber.org/zap"
)

// Source supplies the tools offered to the model for a request.
type Source interface {
	Callbacks(ctx context.Context) ([]Tool, error)
}

type callbackSet struct {
	callbacks  []Tool
	validUntil time.Time
}

// Provider builds callbacks for every tool of the catalog and caches them
// for a fixed time. Reads never block while the cache is valid; concurrent
// readers of an expired cache trigger a single rebuild.
type Provider struct {
	catalog     Catalog
	ttl         time.Duration
	callTimeout time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu    sync.Mutex
	cache atomic.Pointer[callbackSet]
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithMetrics records cache rebuilds and tool calls on m.
func WithMetrics(m *metrics.Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) { p.now = now }
}

// NewProvider creates a provider over catalog.
func NewProvider(catalog Catalog, cfg config.ToolsConfig, log *logger.Logger, opts ...ProviderOption) *Provider {
	p := &Provider{
		catalog:     catalog,
		ttl:         cfg.CacheTTL,
		callTimeout: cfg.CallTimeout,
		logger:      log.WithComponent("tool-provider"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Callbacks returns the cached callbacks, rebuilding them when the cache has
// expired or was invalidated. A failed rebuild leaves the cache untouched.
func (p *Provider) Callbacks(ctx context.Context) ([]Tool, error) {
	if set := p.valid(); set != nil {
		return clone(set.callbacks), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if set := p.valid(); set != nil {
		return clone(set.callbacks), nil
	}

	callbacks, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.Store(&callbackSet{callbacks: callbacks, validUntil: p.now().Add(p.ttl)})
	p.metrics.RecordCacheRebuild()
	p.logger.Debug("Tool callbacks rebuilt", zap.Int("count", len(callbacks)))

	return clone(callbacks), nil
}

// Invalidate drops the cache. It waits for a rebuild in progress so that
// the rebuilt set cannot overwrite the invalidation.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Store(nil)
}

// Lookup finds a callback by name.
func (p *Provider) Lookup(ctx context.Context, name string) (Tool, bool, error) {
	callbacks, err := p.Callbacks(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, cb := range callbacks {
		if cb.Name() == name {
			return cb, true, nil
		}
	}
	return nil, false, nil
}

func (p *Provider) valid() *callbackSet {
	set := p.cache.Load()
	if set == nil || !p.now().Before(set.validUntil) {
		return nil
	}
	return set
}

func (p *Provider) build(ctx context.Context) ([]Tool, error) {
	listed, err := p.catalog.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	servers := make([]string, 0, len(listed))
	for server := range listed {
		servers = append(servers, server)
	}
	sort.Strings(servers)

	seen := make(map[string]bool)
	var callbacks []Tool
	for _, server := range servers {
		for _, tool := range listed[server] {
			if tool == nil || tool.Name == "" {
				continue
			}
			name := tool.Name
			if seen[name] {
				name = server + "_" + tool.Name
				p.logger.Warn("Duplicate tool name, qualifying with server",
					zap.String("tool", tool.Name),
					zap.String("server", server),
				)
			}
			seen[name] = true

			callbacks = append(callbacks, &Callback{
				name:    name,
				server:  server,
				tool:    tool,
				catalog: p.catalog,
				timeout: p.callTimeout,
				logger:  p.logger,
				metrics: p.metrics,
			})
		}
	}
	return callbacks, nil
}

func clone(in []Tool) []Tool {
	out := make([]Tool, len(in))
	copy(out, in)
	return out
}
