package tools

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"go.uber.org/zap"
)

// Caller invokes a tool on one server. *mcp.ClientSession implements it.
type Caller interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
}

// Catalog lists the tools offered by every connected server and resolves
// the caller for a server at invocation time.
type Catalog interface {
	ListTools(ctx context.Context) (map[string][]*mcp.Tool, error)
	Caller(server string) (Caller, bool)
}

// TransportFactory creates a transport for a configured server. Tests inject
// in-memory transports through it.
type TransportFactory func(config.ToolServerConfig) (mcp.Transport, error)

// Sessions keeps one MCP client session per configured tool server and
// reconnects servers that stop answering pings.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*mcp.ClientSession

	servers   []config.ToolServerConfig
	factory   TransportFactory
	logger    *logger.Logger
	onChange  func()
	cancelRun context.CancelFunc
	closed    bool
}

// Connect dials every configured server. Servers that fail are logged and
// retried by the health check; an empty server list is valid.
func Connect(ctx context.Context, servers []config.ToolServerConfig, log *logger.Logger, factory TransportFactory) *Sessions {
	if factory == nil {
		factory = newTransport
	}
	s := &Sessions{
		sessions: make(map[string]*mcp.ClientSession, len(servers)),
		servers:  servers,
		factory:  factory,
		logger:   log.WithComponent("tool-sessions"),
	}

	for _, srv := range servers {
		session, err := s.connect(ctx, srv)
		if err != nil {
			s.logger.Error("Failed to connect tool server", zap.String("server", srv.Name), zap.Error(err))
			continue
		}
		s.sessions[srv.Name] = session
		s.logger.Info("Connected tool server",
			zap.String("server", srv.Name),
			zap.String("transport", srv.Transport),
		)
	}

	return s
}

func (s *Sessions) connect(ctx context.Context, srv config.ToolServerConfig) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "llm-veil", Version: "1.0.0"}, nil)

	transport, err := s.factory(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %s: %w", srv.Name, err)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", srv.Name, err)
	}
	return session, nil
}

func newTransport(srv config.ToolServerConfig) (mcp.Transport, error) {
	switch srv.Transport {
	case config.TransportStdio:
		if len(srv.Command) == 0 {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return &mcp.CommandTransport{Command: exec.Command(srv.Command[0], srv.Command[1:]...)}, nil
	case config.TransportHTTP:
		if srv.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", srv.Transport)
	}
}

// ListTools returns the tools of every connected server. A server whose
// listing fails is logged and left out.
func (s *Sessions) ListTools(ctx context.Context) (map[string][]*mcp.Tool, error) {
	out := make(map[string][]*mcp.Tool)
	for _, name := range s.Names() {
		session, ok := s.session(name)
		if !ok {
			continue
		}

		var tools []*mcp.Tool
		var listErr error
		for tool, err := range session.Tools(ctx, nil) {
			if err != nil {
				listErr = err
				break
			}
			tools = append(tools, tool)
		}
		if listErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Failed to list tools", zap.String("server", name), zap.Error(listErr))
			continue
		}
		out[name] = tools
	}
	return out, nil
}

// Caller returns the live session for a server.
func (s *Sessions) Caller(server string) (Caller, bool) {
	session, ok := s.session(server)
	if !ok {
		return nil, false
	}
	return session, true
}

func (s *Sessions) session(name string) (*mcp.ClientSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[name]
	return session, ok
}

// Names returns the connected server names, sorted.
func (s *Sessions) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnChange registers a hook fired after a server is reconnected or dropped.
func (s *Sessions) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

const healthCheckInterval = 30 * time.Second

// StartHealthCheck pings every server periodically until ctx ends or Close
// is called.
func (s *Sessions) StartHealthCheck(ctx context.Context) {
	hctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				s.checkAndReconnect(hctx)
			}
		}
	}()
}

func (s *Sessions) checkAndReconnect(ctx context.Context) {
	changed := false
	for _, srv := range s.servers {
		if ctx.Err() != nil {
			return
		}

		if session, ok := s.session(srv.Name); ok {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := session.Ping(pingCtx, &mcp.PingParams{})
			cancel()
			if err == nil {
				continue
			}
			s.logger.Warn("Tool server health check failed, reconnecting", zap.String("server", srv.Name), zap.Error(err))
			_ = session.Close()
		}

		session, err := s.connect(ctx, srv)
		s.mu.Lock()
		if s.closed || ctx.Err() != nil {
			s.mu.Unlock()
			if err == nil {
				_ = session.Close()
			}
			return
		}
		if err != nil {
			if _, had := s.sessions[srv.Name]; had {
				changed = true
			}
			delete(s.sessions, srv.Name)
		} else {
			s.sessions[srv.Name] = session
			changed = true
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Debug("Tool server reconnect failed", zap.String("server", srv.Name), zap.Error(err))
		} else {
			s.logger.Info("Tool server reconnected", zap.String("server", srv.Name))
		}
	}

	if changed {
		s.mu.RLock()
		fn := s.onChange
		s.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}
}

// Close stops health checks and closes every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancelRun != nil {
		s.cancelRun()
	}
	for name, session := range s.sessions {
		if err := session.Close(); err != nil {
			s.logger.Warn("Error closing tool session", zap.String("server", name), zap.Error(err))
		}
	}
	s.sessions = make(map[string]*mcp.ClientSession)
}
