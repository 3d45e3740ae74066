package database

import (
	"context"
	"fmt"
	"time"

	"streamflux/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_favorites (
	user_id       TEXT             NOT NULL,
	media_id      INTEGER          NOT NULL,
	category      TEXT             NOT NULL CHECK (category IN ('movie', 'anime')),
	title         TEXT             NOT NULL,
	poster_path   TEXT             NOT NULL,
	backdrop_path TEXT,
	overview      TEXT,
	release_date  TEXT,
	vote_average  DOUBLE PRECISION NOT NULL DEFAULT 0,
	popularity    DOUBLE PRECISION,
	genres        JSONB,
	created_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, media_id, category)
);

CREATE INDEX IF NOT EXISTS user_favorites_user_created_idx
	ON user_favorites (user_id, created_at);
`

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, cfg config.Database, logger *logrus.Logger) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("missing required database configuration")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection successful")
	return pool, nil
}

// Migrate creates the favorites schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
