package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"streamflux/internal/config"
	"streamflux/internal/models"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

const movieCachePrefix = "movie:details:"

// MovieClient resolves TMDB movie details.
type MovieClient struct {
	baseURL string
	apiKey  string
	fetch   *fetcher
	cache   *responseCache
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *logrus.Logger
}

type MovieClientConfig struct {
	TMDB   config.TMDB
	HTTP   config.HTTPClient
	Redis  *redis.Client
	// Burst is how many requests may go out before HTTP.RateLimit paces
	// them, normally the enrichment batch size.
	Burst  int
	Logger *logrus.Logger
}

func NewMovieClient(cfg MovieClientConfig) *MovieClient {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	log := cfg.Logger

	settings := gobreaker.Settings{
		Name:        "tmdb",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing movie says nothing about the health of the provider
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &MovieClient{
		baseURL: cfg.TMDB.BaseURL,
		apiKey:  cfg.TMDB.APIKey,
		fetch:   newFetcher(cfg.HTTP, log, cfg.Burst),
		cache:   &responseCache{redis: cfg.Redis, ttl: cfg.HTTP.CacheTTL, logger: log},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:  log,
	}
}

// GetDetails returns the details of movie id, or ErrNotFound.
func (c *MovieClient) GetDetails(ctx context.Context, id int) (*models.MovieDetails, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid movie id %d", id)
	}

	cacheKey := movieCachePrefix + strconv.Itoa(id)
	var cached models.MovieDetails
	if c.cache.get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	detailsURL := fmt.Sprintf("%s/movie/%d?%s", c.baseURL, id, params.Encode())

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch.get(ctx, detailsURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.WithField("movie_id", id).Warn("TMDB circuit open, skipping request")
		}
		return nil, fmt.Errorf("movie %d: %w", id, err)
	}

	var details models.MovieDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to decode movie %d: %w", id, err)
	}

	c.cache.set(ctx, cacheKey, details)
	return &details, nil
}
