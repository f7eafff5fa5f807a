package audit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id                BIGSERIAL PRIMARY KEY,
	request_id        TEXT NOT NULL,
	source            TEXT NOT NULL,
	entity_count      INTEGER NOT NULL DEFAULT 0,
	entity_types      TEXT[] NOT NULL DEFAULT '{}',
	tools             TEXT[] NOT NULL DEFAULT '{}',
	tool_calls        INTEGER NOT NULL DEFAULT 0,
	failed_tool_calls INTEGER NOT NULL DEFAULT 0,
	duration_ms       DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS audit_entries_created_at_idx ON audit_entries (created_at DESC);`

// Store is the PostgreSQL audit log.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to PostgreSQL and creates the audit table if needed.
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: log.WithComponent("audit"),
	}

	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	store.logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record inserts e and fills in its ID and creation time.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO audit_entries
			(request_id, source, entity_count, entity_types, tools, tool_calls, failed_tool_calls, duration_ms)
		VALUES
			(:request_id, :source, :entity_count, :entity_types, :tools, :tool_calls, :failed_tool_calls, :duration_ms)
		RETURNING id, created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, e)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&e.ID, &e.CreatedAt); err != nil {
			return fmt.Errorf("failed to read audit entry id: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	s.logger.Debug("Audit entry recorded",
		zap.Int64("id", e.ID),
		zap.String("request_id", e.RequestID),
	)
	return nil
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)

	entries := []Entry{}
	query := `
		SELECT id, request_id, source, entity_count, entity_types, tools,
		       tool_calls, failed_tool_calls, duration_ms, created_at
		FROM audit_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return min(limit, maxRecentLimit)
}

// maskDatabaseURL hides the password in a connection URL.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
