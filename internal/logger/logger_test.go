package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		l, err := New(Config{Level: "info", Format: "json"})
		require.NoError(t, err)
		assert.NotNil(t, l.Logger)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "veil.log")
		l, err := New(Config{Level: "debug", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
		require.NoError(t, err)
		l.Info("hello")
		assert.FileExists(t, path)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})
		assert.Error(t, err)
	})
}

func TestLogRequest_RedactsSensitiveHeaders(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithRequestID("req-1").LogRequest("POST", "/v1/chat", map[string][]string{
		"Authorization": {"Bearer secret"},
		"Content-Type":  {"application/json"},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	ctx := entry.ContextMap()
	assert.Equal(t, "req-1", ctx["request_id"])
	headers, ok := ctx["headers"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestIsSensitiveHeader(t *testing.T) {
	assert.True(t, isSensitiveHeader("X-Api-Key"))
	assert.True(t, isSensitiveHeader("Cookie"))
	assert.False(t, isSensitiveHeader("Accept"))
}
