package cache

import (
	"context"
	"fmt"

	"streamflux/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedis connects the client used to cache provider responses. A nil
// client with a nil error means caching is disabled.
func NewRedis(ctx context.Context, cfg config.Redis, logger *logrus.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		logger.Info("Redis caching disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", cfg.Addr()).Info("Redis connection successful")
	return client, nil
}
