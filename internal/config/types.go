package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Tools     ToolsConfig     `yaml:"tools" mapstructure:"tools"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// PrivacyConfig controls entity detection and placeholder substitution.
type PrivacyConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	Detectors         []string      `yaml:"detectors" mapstructure:"detectors"` // "all" or entity type names
	DisabledDetectors []string      `yaml:"disabled_detectors" mapstructure:"disabled_detectors"`
	MinConfidence     float64       `yaml:"min_confidence" mapstructure:"min_confidence"`
	MatchTimeout      time.Duration `yaml:"match_timeout" mapstructure:"match_timeout"`
	// StrictContext panics on use of a released request scope instead of
	// degrading to a no-op. Meant for development.
	StrictContext bool `yaml:"strict_context" mapstructure:"strict_context"`
}

// Tool server transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ToolsConfig lists the MCP servers whose tools are offered to the model.
type ToolsConfig struct {
	CacheTTL    time.Duration      `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CallTimeout time.Duration      `yaml:"call_timeout" mapstructure:"call_timeout"`
	LogPayloads bool               `yaml:"log_payloads" mapstructure:"log_payloads"`
	Servers     []ToolServerConfig `yaml:"servers" mapstructure:"servers"`
}

// ToolServerConfig describes one MCP server connection.
type ToolServerConfig struct {
	Name      string   `yaml:"name" mapstructure:"name"`
	Transport string   `yaml:"transport" mapstructure:"transport"` // stdio or http
	Command   []string `yaml:"command" mapstructure:"command"`
	URL       string   `yaml:"url" mapstructure:"url"`
}

// SecurityConfig contains request guardrails
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-client token bucket. When RedisURL is
// set, limits are shared between instances through a fixed one minute window
// in Redis and Burst is ignored.
type RateLimitConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int    `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int    `yaml:"burst" mapstructure:"burst"`
	RedisURL       string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	Username        string        `yaml:"username" mapstructure:"username"`
	Password        string        `yaml:"password" mapstructure:"password"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events          EventsConfig  `yaml:"events" mapstructure:"events"`
}

// EventsConfig selects which events are broadcast.
type EventsConfig struct {
	BroadcastAnonymization bool `yaml:"broadcast_anonymization" mapstructure:"broadcast_anonymization"`
	BroadcastToolCalls     bool `yaml:"broadcast_tool_calls" mapstructure:"broadcast_tool_calls"`
	BroadcastSystem        bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections   bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// AuditConfig configures the request audit log. Entries hold counts, entity
// types and tool names only.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Privacy: PrivacyConfig{
			Enabled:       true,
			Detectors:     []string{"all"},
			MinConfidence: 0,
			MatchTimeout:  250 * time.Millisecond,
		},
		Tools: ToolsConfig{
			CacheTTL:    5 * time.Minute,
			CallTimeout: 60 * time.Second,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				Burst:          20,
				KeyPrefix:      "veil:ratelimit:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			Username:        "admin",
			Password:        "changeme",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
			Events: EventsConfig{
				BroadcastAnonymization: true,
				BroadcastToolCalls:     true,
				BroadcastSystem:        true,
				BroadcastConnections:   true,
			},
		},
		Audit: AuditConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
	}
	cfg.Logging.File.Path = "logs/veil.log"
	return cfg
}
