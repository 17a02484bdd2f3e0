package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
)

// Store persists custom detection patterns in PostgreSQL so registrations
// survive restarts. The in-memory registry stays the source of truth while
// the process runs; the store is loaded once at startup and written through
// on every mutation.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS custom_patterns (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	pattern     TEXT NOT NULL,
	flags       TEXT NOT NULL DEFAULT '',
	replacement TEXT NOT NULL,
	severity    TEXT NOT NULL DEFAULT 'medium',
	priority    INTEGER NOT NULL DEFAULT 0,
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	usage_count BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_custom_patterns_name ON custom_patterns (LOWER(name));
CREATE UNIQUE INDEX IF NOT EXISTS idx_custom_patterns_source ON custom_patterns (pattern, flags);
CREATE UNIQUE INDEX IF NOT EXISTS idx_custom_patterns_replacement ON custom_patterns (replacement);
`

// NewStore connects to the database and ensures the schema exists.
func NewStore(config *Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: log,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Pattern store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// initialize checks the connection and applies the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	return nil
}

// LoadAll returns every persisted pattern in registration order.
func (s *Store) LoadAll(ctx context.Context) ([]masking.CustomPattern, error) {
	query := `
		SELECT id, name, pattern, flags, replacement, severity, priority,
		       enabled, usage_count, created_at, updated_at
		FROM custom_patterns
		ORDER BY created_at, id`

	var patterns []masking.CustomPattern
	if err := s.db.SelectContext(ctx, &patterns, query); err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	s.logger.Debug("Loaded custom patterns", zap.Int("count", len(patterns)))
	return patterns, nil
}

// Save upserts one pattern. Inserts and updates share the statement so the
// registry can write through without tracking which case it is in.
func (s *Store) Save(ctx context.Context, p *masking.CustomPattern) error {
	query := `
		INSERT INTO custom_patterns
			(id, name, pattern, flags, replacement, severity, priority, enabled, usage_count, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			pattern = EXCLUDED.pattern,
			flags = EXCLUDED.flags,
			replacement = EXCLUDED.replacement,
			severity = EXCLUDED.severity,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Pattern, p.Flags, p.Replacement,
		p.Severity, p.Priority, p.Enabled, p.UsageCount,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		s.logger.Error("Failed to save pattern",
			zap.Error(err),
			zap.String("pattern_id", p.ID),
			zap.String("name", p.Name))
		return fmt.Errorf("failed to save pattern %s: %w", p.ID, err)
	}

	return nil
}

// Delete removes one pattern by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM custom_patterns WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete pattern %s: %w", id, err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		s.logger.Warn("Deleted pattern was not persisted", zap.String("pattern_id", id))
	}
	return nil
}

// SetEnabled flips the enabled flag without touching the rule body.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	query := "UPDATE custom_patterns SET enabled = $2, updated_at = NOW() WHERE id = $1"
	if _, err := s.db.ExecContext(ctx, query, id, enabled); err != nil {
		return fmt.Errorf("failed to toggle pattern %s: %w", id, err)
	}
	return nil
}

// IncrementUsage adds per-pattern hit counts accumulated during masking.
// Counts are written in one statement to keep the hot path cheap.
func (s *Store) IncrementUsage(ctx context.Context, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(counts))
	valueArgs := make([]interface{}, 0, len(counts)*2)
	i := 0
	for id, n := range counts {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d::text, $%d::bigint)", i*2+1, i*2+2))
		valueArgs = append(valueArgs, id, int64(n))
		i++
	}

	query := fmt.Sprintf(`
		UPDATE custom_patterns AS cp
		SET usage_count = cp.usage_count + v.n, updated_at = NOW()
		FROM (VALUES %s) AS v(id, n)
		WHERE cp.id = v.id`,
		strings.Join(valueStrings, ","))

	if _, err := s.db.ExecContext(ctx, query, valueArgs...); err != nil {
		s.logger.Error("Failed to record pattern usage", zap.Error(err))
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

// GetStats returns aggregate counters over the persisted set.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	query := `
		SELECT
			COUNT(*) as total_patterns,
			COUNT(CASE WHEN enabled THEN 1 END) as enabled_patterns,
			COALESCE(SUM(usage_count), 0) as total_usage
		FROM custom_patterns`

	if err := s.db.GetContext(ctx, stats, query); err != nil {
		return nil, fmt.Errorf("failed to get pattern stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the database connection, used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password portion of a connection URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
