package services

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// responseCache is a read-through JSON cache in Redis. A nil client turns
// every call into a miss.
type responseCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func (c *responseCache) get(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}

	cached, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("Failed to read from Redis")
		}
		return false
	}

	if err := json.Unmarshal([]byte(cached), dst); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to unmarshal cached response")
		return false
	}

	c.logger.WithField("key", key).Debug("Retrieved response from cache")
	return true
}

func (c *responseCache) set(ctx context.Context, key string, value any) {
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal response for caching")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to write response to cache")
		return
	}
	c.logger.WithField("key", key).Debug("Response cached successfully")
}
