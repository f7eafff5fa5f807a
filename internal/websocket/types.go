package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/llm-veil/internal/privacy"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAnonymization is sent after a text was anonymized
	EventTypeAnonymization EventType = "anonymization"
	// EventTypeToolCall is sent after each tool invocation
	EventTypeToolCall EventType = "tool_call"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// AnonymizationEvent summarizes one anonymization. It never carries
// original values.
type AnonymizationEvent struct {
	RequestID     string            `json:"request_id"`
	Source        string            `json:"source"` // "chat" or "anonymize"
	ClientIP      string            `json:"client_ip,omitempty"`
	Findings      []privacy.Finding `json:"findings"`
	TotalEntities int               `json:"total_entities"`
	ProcessingMS  float64           `json:"processing_ms"`
}

// ToolCallEvent reports one tool invocation.
type ToolCallEvent struct {
	RequestID  string  `json:"request_id"`
	Server     string  `json:"server"`
	Tool       string  `json:"tool"`
	DurationMS float64 `json:"duration_ms"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string   `json:"status"`
	Uptime           string   `json:"uptime"`
	TotalRequests    int64    `json:"total_requests"`
	TotalEntities    int64    `json:"total_entities"`
	ActivePatterns   int      `json:"active_patterns"`
	ToolServers      []string `json:"tool_servers"`
	ConnectedClients int      `json:"connected_clients"`
	MemoryUsage      string   `json:"memory_usage"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string               `json:"type"`
	Data *SubscriptionRequest `json:"data,omitempty"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows the events a client receives. EntityTypes keeps
// anonymization events that found one of those types; Tools and FailuresOnly
// apply to tool_call events.
type EventFilter struct {
	EntityTypes  []string `json:"entity_types,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	FailuresOnly bool     `json:"failures_only,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.Mutex
	subscription *SubscriptionRequest
}

func (c *Client) setSubscription(sub *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = sub
}

func (c *Client) getSubscription() *SubscriptionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscription
}
