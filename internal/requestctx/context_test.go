package requestctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *privacy.Result {
	return privacy.NewResult("Mail a@b.com", "Mail [EMAIL_1]", []privacy.Mapping{
		{Placeholder: "[EMAIL_1]", Entity: privacy.Entity{OriginalValue: "a@b.com", Type: privacy.EntityEmail}},
	})
}

func TestWithScope_and_FromContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.Nil(t, ActiveResult(ctx))

	s := New("req-1", false)
	require.NoError(t, s.Bind(testResult()))
	ctx2 := WithScope(ctx, s)

	assert.Same(t, s, FromContext(ctx2))
	assert.Equal(t, "a@b.com", ActiveResult(ctx2).Deanonymize("[EMAIL_1]"))
	assert.Nil(t, FromContext(ctx))
}

func TestScope_BindOnce(t *testing.T) {
	s := New("req-1", false)
	require.NoError(t, s.Bind(testResult()))
	assert.ErrorIs(t, s.Bind(testResult()), ErrResultBound)
}

func TestScope_RecordAndRelease(t *testing.T) {
	s := New("req-1", false)
	require.NoError(t, s.Bind(testResult()))
	require.NoError(t, s.Record(ToolCall{Server: "home", Tool: "lights", Duration: time.Millisecond}))
	require.NoError(t, s.Record(ToolCall{Server: "home", Tool: "blinds", Error: "timeout"}))

	calls := s.ToolCalls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Succeeded())
	assert.False(t, calls[1].Succeeded())

	s.Release()
	s.Release()
	assert.True(t, s.Released())
	assert.Nil(t, s.Result())
	assert.Nil(t, s.ToolCalls())
	assert.ErrorIs(t, s.Record(ToolCall{Tool: "late"}), ErrScopeReleased)
	assert.ErrorIs(t, s.Bind(testResult()), ErrScopeReleased)
}

func TestScope_StrictPanicsAfterRelease(t *testing.T) {
	s := New("req-1", true)
	require.NoError(t, s.Bind(testResult()))
	s.Release()

	assert.Panics(t, func() { s.Result() })
	assert.Panics(t, func() { _ = s.Record(ToolCall{Tool: "late"}) })
	assert.Panics(t, func() { s.ToolCalls() })
}

func TestScope_NilIsNoScope(t *testing.T) {
	var s *Scope
	assert.Nil(t, s.Result())
	assert.NoError(t, s.Record(ToolCall{Tool: "x"}))
	assert.Nil(t, s.ToolCalls())
	assert.Empty(t, s.ID())
	s.Release()
	assert.False(t, s.Released())
}

func TestRun_ReleasesOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var captured *Scope
		err := Run(context.Background(), "ok", false, testResult(), func(ctx context.Context, s *Scope) error {
			captured = s
			assert.NotNil(t, ActiveResult(ctx))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, captured.Released())
	})

	t.Run("error", func(t *testing.T) {
		var captured *Scope
		boom := errors.New("boom")
		err := Run(context.Background(), "err", false, testResult(), func(ctx context.Context, s *Scope) error {
			captured = s
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.True(t, captured.Released())
	})

	t.Run("panic", func(t *testing.T) {
		var captured *Scope
		assert.Panics(t, func() {
			_ = Run(context.Background(), "panic", false, testResult(), func(ctx context.Context, s *Scope) error {
				captured = s
				panic("generator exploded")
			})
		})
		assert.True(t, captured.Released())
	})
}

func TestScope_ConcurrentRequestsDoNotLeak(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := string(rune('a'+i%26)) + "@example.com"
			result := privacy.NewResult(value, "[EMAIL_1]", []privacy.Mapping{
				{Placeholder: "[EMAIL_1]", Entity: privacy.Entity{OriginalValue: value, Type: privacy.EntityEmail}},
			})
			_ = Run(context.Background(), value, false, result, func(ctx context.Context, s *Scope) error {
				time.Sleep(time.Millisecond)
				assert.Equal(t, value, ActiveResult(ctx).Deanonymize("[EMAIL_1]"))
				return s.Record(ToolCall{Tool: value})
			})
		}(i)
	}
	wg.Wait()
}
