package services

import (
	"context"
	"fmt"
	"strconv"

	"streamflux/internal/config"
	"streamflux/internal/models"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const animeCachePrefix = "anime:details:"

// AnimeClient resolves anime metadata from Jikan.
type AnimeClient struct {
	baseURL string
	fetch   *fetcher
	cache   *responseCache
	logger  *logrus.Logger
}

type AnimeClientConfig struct {
	Jikan  config.Jikan
	HTTP   config.HTTPClient
	Redis  *redis.Client
	Logger *logrus.Logger
}

func NewAnimeClient(cfg AnimeClientConfig) *AnimeClient {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &AnimeClient{
		baseURL: cfg.Jikan.BaseURL,
		fetch:   newFetcher(cfg.HTTP, cfg.Logger, 1),
		cache:   &responseCache{redis: cfg.Redis, ttl: cfg.HTTP.CacheTTL, logger: cfg.Logger},
		logger:  cfg.Logger,
	}
}

func (c *AnimeClient) GetAnime(ctx context.Context, id int) (*models.AnimeData, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid anime id %d", id)
	}

	c.logger.WithField("mal_id", id).Debug("Fetching anime details")

	cacheKey := animeCachePrefix + strconv.Itoa(id)
	var cached models.AnimeData
	if c.cache.get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	body, err := c.fetch.get(ctx, fmt.Sprintf("%s/anime/%d", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("anime %d: %w", id, err)
	}

	var resp models.JikanAnimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode anime %d: %w", id, err)
	}

	c.cache.set(ctx, cacheKey, resp.Data)
	return &resp.Data, nil
}

// AnimeFavorite builds the record stored when anime id is toggled.
func (c *AnimeClient) AnimeFavorite(ctx context.Context, id int) (models.FavoriteRecord, error) {
	anime, err := c.GetAnime(ctx, id)
	if err != nil {
		return models.FavoriteRecord{}, err
	}
	return anime.Favorite(), nil
}
