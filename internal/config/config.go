package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/llm-veil/")
	viper.AddConfigPath("$HOME/.llm-veil/")

	// Environment variable overrides, e.g. VEIL_PRIVACY_ENABLED
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers scalar keys so AutomaticEnv can override them even
// when the config file does not mention them.
func bindEnvKeys() {
	keys := []string{
		"server.port",
		"privacy.enabled",
		"privacy.min_confidence",
		"privacy.match_timeout",
		"privacy.strict_context",
		"tools.cache_ttl",
		"tools.call_timeout",
		"security.rate_limit.enabled",
		"security.rate_limit.requests_per_min",
		"security.rate_limit.redis_url",
		"logging.level",
		"logging.format",
		"websocket.enabled",
		"websocket.username",
		"websocket.password",
		"audit.enabled",
		"audit.database_url",
	}
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Privacy.MinConfidence < 0 || config.Privacy.MinConfidence > 1 {
		return fmt.Errorf("invalid privacy min_confidence: %v (must be between 0 and 1)", config.Privacy.MinConfidence)
	}

	if config.Privacy.MatchTimeout < 0 {
		return fmt.Errorf("invalid privacy match_timeout: %s", config.Privacy.MatchTimeout)
	}

	if config.Tools.CacheTTL <= 0 {
		return fmt.Errorf("invalid tools cache_ttl: %s", config.Tools.CacheTTL)
	}

	seen := make(map[string]bool)
	for i, s := range config.Tools.Servers {
		if s.Name == "" {
			return fmt.Errorf("tools server %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("tools server %s: duplicate name", s.Name)
		}
		seen[s.Name] = true

		switch s.Transport {
		case TransportStdio:
			if len(s.Command) == 0 {
				return fmt.Errorf("tools server %s: stdio transport requires command", s.Name)
			}
		case TransportHTTP:
			if s.URL == "" {
				return fmt.Errorf("tools server %s: http transport requires url", s.Name)
			}
		default:
			return fmt.Errorf("tools server %s: invalid transport %q (must be stdio or http)", s.Name, s.Transport)
		}
	}

	if rl := config.Security.RateLimit; rl.Enabled && (rl.RequestsPerMin <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: requests_per_min and burst must be positive")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit log enabled without database_url")
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// revisions are reported through onError and otherwise ignored.
func Watch(callback func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal %s: %w", e.Name, err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			onError(fmt.Errorf("invalid configuration in %s: %w", e.Name, err))
			return
		}

		callback(newConfig)
	})
	viper.WatchConfig()
}
