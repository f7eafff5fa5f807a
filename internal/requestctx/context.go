// Package requestctx carries the per-request anonymization scope: the active
// result used to translate tool arguments and responses, and the log of tool
// calls made while serving the request.
package requestctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/llm-veil/internal/privacy"
)

var (
	// ErrScopeReleased is returned when a scope is used after Release.
	ErrScopeReleased = errors.New("request scope already released")
	// ErrResultBound is returned when a second result is bound to a scope.
	ErrResultBound = errors.New("request scope already has a result")
)

type contextKey struct{}

var scopeKey = &contextKey{}

// ToolCall records one tool invocation made on behalf of a request.
type ToolCall struct {
	Server   string        `json:"server"`
	Tool     string        `json:"tool"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Succeeded reports whether the call completed without error.
func (c ToolCall) Succeeded() bool { return c.Error == "" }

// Scope is the state of one logical request. It is safe for concurrent use
// by the goroutines serving that request. A nil *Scope acts as "no active
// request": reads return nothing and writes are dropped.
type Scope struct {
	id     string
	strict bool

	mu       sync.Mutex
	result   *privacy.Result
	calls    []ToolCall
	released bool
}

// New creates a scope. In strict mode any use after Release panics.
func New(id string, strict bool) *Scope {
	return &Scope{id: id, strict: strict}
}

// ID returns the request identifier.
func (s *Scope) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Bind sets the anonymization result for the request. It may be called once.
func (s *Scope) Bind(result *privacy.Result) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return s.violation("bind")
	}
	if s.result != nil {
		return ErrResultBound
	}
	s.result = result
	return nil
}

// Result returns the active result, or nil when none is bound or the scope
// has been released.
func (s *Scope) Result() *privacy.Result {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		_ = s.violation("result")
		return nil
	}
	return s.result
}

// Record appends a tool call to the request log.
func (s *Scope) Record(call ToolCall) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return s.violation("record")
	}
	s.calls = append(s.calls, call)
	return nil
}

// ToolCalls returns a copy of the calls recorded so far.
func (s *Scope) ToolCalls() []ToolCall {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		_ = s.violation("tool calls")
		return nil
	}
	out := make([]ToolCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Release drops the result and the call log. Releasing twice is harmless.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = true
	s.result = nil
	s.calls = nil
}

// Released reports whether Release has been called.
func (s *Scope) Released() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// violation must be called with s.mu held.
func (s *Scope) violation(op string) error {
	err := fmt.Errorf("%s on request %s: %w", op, s.id, ErrScopeReleased)
	if s.strict {
		panic(err)
	}
	return err
}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext returns the scope stored in ctx, or nil.
func FromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey).(*Scope)
	return s
}

// ActiveResult returns the result of the scope in ctx, or nil.
func ActiveResult(ctx context.Context) *privacy.Result {
	return FromContext(ctx).Result()
}

// Run binds result to a new scope, calls fn with a context carrying it and
// releases the scope when fn returns or panics.
func Run(ctx context.Context, id string, strict bool, result *privacy.Result, fn func(ctx context.Context, s *Scope) error) error {
	s := New(id, strict)
	defer s.Release()

	if err := s.Bind(result); err != nil {
		return err
	}
	return fn(WithScope(ctx, s), s)
}
