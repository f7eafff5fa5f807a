// Package audit records a privacy-safe summary of every processed request.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/requestctx"
)

// Entry summarizes one request. It carries no text, no original values and
// no placeholders.
type Entry struct {
	ID              int64          `db:"id" json:"id"`
	RequestID       string         `db:"request_id" json:"request_id"`
	Source          string         `db:"source" json:"source"`
	EntityCount     int            `db:"entity_count" json:"entity_count"`
	EntityTypes     pq.StringArray `db:"entity_types" json:"entity_types"`
	Tools           pq.StringArray `db:"tools" json:"tools"`
	ToolCalls       int            `db:"tool_calls" json:"tool_calls"`
	FailedToolCalls int            `db:"failed_tool_calls" json:"failed_tool_calls"`
	DurationMS      float64        `db:"duration_ms" json:"duration_ms"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Log stores and lists audit entries.
type Log interface {
	Record(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// NewEntry builds an entry from the findings and tool calls of a request.
func NewEntry(requestID, source string, findings []privacy.Finding, calls []requestctx.ToolCall, d time.Duration) *Entry {
	e := &Entry{
		RequestID:   requestID,
		Source:      source,
		EntityTypes: pq.StringArray{},
		Tools:       pq.StringArray{},
		ToolCalls:   len(calls),
		DurationMS:  float64(d.Microseconds()) / 1000,
	}

	for _, f := range findings {
		e.EntityCount += f.Count
		e.EntityTypes = append(e.EntityTypes, string(f.EntityType))
	}
	sort.Strings(e.EntityTypes)

	seen := make(map[string]bool)
	for _, c := range calls {
		if !c.Succeeded() {
			e.FailedToolCalls++
		}
		if !seen[c.Tool] {
			seen[c.Tool] = true
			e.Tools = append(e.Tools, c.Tool)
		}
	}
	sort.Strings(e.Tools)

	return e
}
