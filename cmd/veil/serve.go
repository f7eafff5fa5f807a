package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/llm-veil/internal/assistant"
	"github.com/raaihank/llm-veil/internal/audit"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/metrics"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/raaihank/llm-veil/internal/security"
	"github.com/raaihank/llm-veil/internal/server"
	"github.com/raaihank/llm-veil/internal/tools"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the veil HTTP server.

The server connects the configured MCP tool servers, exposes /v1/anonymize,
/v1/chat and /v1/tools, and streams events on the WebSocket endpoint.
Configuration changes to the privacy section are applied without restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting llm-veil",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	m := metrics.NewMetrics()

	anonymizer, err := privacy.New(cfg.Privacy, log, m)
	if err != nil {
		return fmt.Errorf("failed to create anonymizer: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := tools.Connect(ctx, cfg.Tools.Servers, log, nil)
	defer sessions.Close()

	provider := tools.NewProvider(sessions, cfg.Tools, log, tools.WithMetrics(m))
	sessions.OnChange(provider.Invalidate)
	sessions.StartHealthCheck(ctx)

	service := assistant.NewService(anonymizer, nil, log,
		assistant.WithTools(tools.NewLoggingSource(provider, log, cfg.Tools.LogPayloads)),
		assistant.WithStrictContext(cfg.Privacy.StrictContext),
	)

	opts := []server.Option{
		server.WithTools(provider, sessions),
		server.WithMetrics(m),
		server.WithVersion(version),
	}
	if cfg.Security.RateLimit.Enabled && cfg.Security.RateLimit.RedisURL != "" {
		limiter, err := security.NewRedisRateLimiter(cfg.Security.RateLimit, log)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		defer func() { _ = limiter.Close() }()
		opts = append(opts, server.WithLimiter(limiter))
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, server.WithAudit(store))
	}

	srv := server.New(cfg, log, service, opts...)

	config.Watch(func(next *config.Config) {
		rebuilt, err := privacy.New(next.Privacy, log, m)
		if err != nil {
			log.Error("Failed to apply privacy configuration", zap.Error(err))
			return
		}
		service.SetAnonymizer(rebuilt)
		provider.Invalidate()
		log.Info("Configuration reloaded",
			zap.Bool("privacy_enabled", rebuilt.Enabled()),
			zap.Int("patterns", rebuilt.PatternCount()),
		)
	}, func(err error) {
		log.Warn("Ignoring configuration change", zap.Error(err))
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start(ctx)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to shutdown server gracefully", zap.Error(err))
		return err
	}

	log.Info("Server shutdown complete")
	return nil
}
