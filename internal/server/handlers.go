package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raaihank/llm-veil/internal/assistant"
	"github.com/raaihank/llm-veil/internal/audit"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/security"
	"github.com/raaihank/llm-veil/internal/websocket"
	"go.uber.org/zap"
)

type anonymizeRequest struct {
	Text string `json:"text"`
}

type anonymizeResponse struct {
	RequestID      string               `json:"request_id"`
	AnonymizedText string               `json:"anonymized_text"`
	EntityCount    int                  `json:"entity_count"`
	EntityTypes    []privacy.EntityType `json:"entity_types"`
	Findings       []privacy.Finding    `json:"findings"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type toolInfo struct {
	Name        string          `json:"name"`
	Server      string          `json:"server"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":            "llm-veil",
		"version":         s.version,
		"privacy_enabled": false,
		"entity_types":    []privacy.EntityType{},
		"patterns":        0,
		"generator":       s.service.HasGenerator(),
		"tool_servers":    s.serverNames(),
		"uptime":          time.Since(s.startTime).Round(time.Second).String(),
	}
	if a := s.service.Anonymizer(); a != nil {
		info["privacy_enabled"] = a.Enabled()
		info["entity_types"] = a.EnabledTypes()
		info["patterns"] = a.PatternCount()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleAnonymize anonymizes a text. The response never contains the
// original values.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req anonymizeRequest
	if !s.decode(w, r, &req) {
		return
	}

	anonymizer := s.service.Anonymizer()
	if anonymizer == nil {
		writeError(w, http.StatusServiceUnavailable, "anonymizer not available")
		return
	}

	start := time.Now()
	result := anonymizer.Anonymize(r.Context(), req.Text)
	requestID := RequestID(r.Context())

	elapsed := time.Since(start)
	s.recordAnonymization(r, requestID, "anonymize", result.Findings(), result.EntityCount(), elapsed)
	s.recordAudit(r, audit.NewEntry(requestID, "anonymize", result.Findings(), nil, elapsed))

	writeJSON(w, http.StatusOK, anonymizeResponse{
		RequestID:      requestID,
		AnonymizedText: result.AnonymizedText(),
		EntityCount:    result.EntityCount(),
		EntityTypes:    nonNil(result.DetectedEntityTypes()),
		Findings:       nonNil(result.Findings()),
	})
}

// handleChat runs a request through the assistant.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.service.HasGenerator() {
		writeError(w, http.StatusServiceUnavailable, "no generator configured")
		return
	}

	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	requestID := RequestID(r.Context())
	reply, err := s.service.Process(r.Context(), requestID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrEmptyQuery), errors.Is(err, assistant.ErrQueryTooLong):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, assistant.ErrNoGenerator), errors.Is(err, assistant.ErrNoAnonymizer):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, "failed to generate reply")
		}
		return
	}

	s.recordAnonymization(r, requestID, "chat", reply.Findings, reply.AnonymizedEntities, reply.Duration)
	s.recordAudit(r, audit.NewEntry(requestID, "chat", reply.Findings, reply.ToolCalls, reply.Duration))
	if s.wsHub != nil {
		for _, call := range reply.ToolCalls {
			s.wsHub.PublishToolCall(websocket.ToolCallEvent{
				RequestID:  requestID,
				Server:     call.Server,
				Tool:       call.Tool,
				DurationMS: float64(call.Duration.Microseconds()) / 1000,
				Success:    call.Succeeded(),
				Error:      call.Error,
			})
		}
	}

	writeJSON(w, http.StatusOK, reply)
}

// handleListTools lists the tools offered to the generator.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tools": []toolInfo{}})
		return
	}

	callbacks, err := s.tools.Callbacks(r.Context())
	if err != nil {
		s.logger.WithRequestID(RequestID(r.Context())).Error("Failed to list tools", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to list tools")
		return
	}

	out := make([]toolInfo, 0, len(callbacks))
	for _, cb := range callbacks {
		out = append(out, toolInfo{
			Name:        cb.Name(),
			Server:      cb.Server(),
			Description: cb.Description(),
			InputSchema: cb.InputSchema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

// handleRefreshTools drops the tool cache and rebuilds it.
func (s *Server) handleRefreshTools(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeJSON(w, http.StatusOK, map[string]int{"tools": 0})
		return
	}

	s.tools.Invalidate()
	callbacks, err := s.tools.Callbacks(r.Context())
	if err != nil {
		s.logger.WithRequestID(RequestID(r.Context())).Error("Failed to refresh tools", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to refresh tools")
		return
	}
	s.logger.Info("Tool cache refreshed", zap.Int("tools", len(callbacks)))
	writeJSON(w, http.StatusOK, map[string]int{"tools": len(callbacks)})
}

// handleAudit lists recent audit entries, newest first.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithRequestID(RequestID(r.Context())).Error("Failed to list audit entries", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}

func (s *Server) recordAudit(r *http.Request, e *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.logger.WithRequestID(e.RequestID).Warn("Failed to record audit entry", zap.Error(err))
	}
}

func (s *Server) recordAnonymization(r *http.Request, requestID, source string, findings []privacy.Finding, total int, d time.Duration) {
	s.totalEntities.Add(int64(total))
	if s.wsHub == nil {
		return
	}
	s.wsHub.PublishAnonymization(websocket.AnonymizationEvent{
		RequestID:     requestID,
		Source:        source,
		ClientIP:      security.ClientIP(r),
		Findings:      nonNil(findings),
		TotalEntities: total,
		ProcessingMS:  float64(d.Microseconds()) / 1000,
	})
}

// decode reads a JSON body into v and writes a 4xx response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
