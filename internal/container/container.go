package container

import (
	"context"
	"fmt"

	"streamflux/internal/cache"
	"streamflux/internal/config"
	"streamflux/internal/database"
	"streamflux/internal/enrichment"
	"streamflux/internal/favorites"
	"streamflux/internal/handlers"
	"streamflux/internal/observer"
	"streamflux/internal/repository"
	"streamflux/internal/services"
	"streamflux/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Container struct {
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Local     *cache.Local
	Logger    *logrus.Logger
	Session   *session.Context
	Store     *favorites.Store
	Pipeline  *enrichment.Pipeline
	Observers *observer.Registry
	Movies    *services.MovieClient
	Anime     *services.AnimeClient
	Profiles  *services.ProfileService
	Handler   *handlers.Handler
}

// New wires every dependency. ctx bounds start-up and the lifetime of the
// background observers.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{Logger: logger}

	db, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db

	if err := database.Migrate(ctx, db); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c.Redis, err = cache.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	c.Local, err = cache.OpenLocal(cfg.Local.Dir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize local cache: %w", err)
	}

	remote, err := repository.NewFavoritesRepository(db, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Session = session.New(logger)
	c.Store = favorites.NewStore(c.Local, remote, c.Session, logger)

	c.Movies = services.NewMovieClient(services.MovieClientConfig{
		TMDB:   cfg.TMDB,
		HTTP:   cfg.HTTP,
		Redis:  c.Redis,
		Burst:  cfg.Enrich.BatchSize,
		Logger: logger,
	})
	c.Anime = services.NewAnimeClient(services.AnimeClientConfig{
		Jikan:  cfg.Jikan,
		HTTP:   cfg.HTTP,
		Redis:  c.Redis,
		Logger: logger,
	})
	c.Profiles = services.NewProfileService(c.Local, logger)
	if err := c.Profiles.Ensure(); err != nil {
		logger.WithError(err).Warn("Failed to initialise local profile")
	}

	c.Pipeline = enrichment.NewPipeline(c.Movies, c.Session, logger)
	c.Observers = observer.NewRegistry(ctx, c.Store, c.Pipeline, c.Session.Bus,
		observer.WithIdleTTL(cfg.Observers.IdleTTL),
		observer.WithMaxObservers(cfg.Observers.Max),
		observer.WithObserverOptions(
			observer.WithBatchSize(cfg.Enrich.BatchSize),
			observer.WithLogger(logger),
		),
	)

	c.Handler = &handlers.Handler{
		Store:     c.Store,
		Observers: c.Observers,
		Movies:    c.Movies,
		Anime:     c.Anime,
		Profiles:  c.Profiles,
		Bus:       c.Session.Bus,
		Health:    c.healthChecks(),
		Logger:    logger,
	}

	return c, nil
}

func (c *Container) healthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"postgres": func(ctx context.Context) error { return c.DB.Ping(ctx) },
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases everything in reverse start-up order. Pending remote
// writes are flushed before the pool goes away.
func (c *Container) Close() {
	if c.Observers != nil {
		c.Observers.Close()
	}
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Session != nil {
		c.Session.Reset()
	}
	if c.Local != nil {
		if err := c.Local.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close local cache")
		} else {
			c.Logger.Info("Local cache closed")
		}
	}
	if c.Redis != nil {
		c.Redis.Close()
		c.Logger.Info("Redis connection closed")
	}
	if c.DB != nil {
		c.DB.Close()
		c.Logger.Info("Database connection closed")
	}
}
