package repository

import (
	"context"
	"errors"
	"fmt"

	"streamflux/internal/models"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// ErrRejected is returned when Postgres refuses a row on a constraint, which
// retrying will not fix.
var ErrRejected = errors.New("favorite rejected by database constraint")

const (
	selectFavorites = `
SELECT media_id, category, title, poster_path, backdrop_path, overview,
       release_date, vote_average, popularity, genres
FROM user_favorites
WHERE user_id = $1
ORDER BY created_at, media_id`

	// Concurrent writers for the same key: the last upsert wins.
	upsertFavorite = `
INSERT INTO user_favorites (user_id, media_id, category, title, poster_path, backdrop_path,
                            overview, release_date, vote_average, popularity, genres)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id, media_id, category) DO UPDATE SET
	title         = EXCLUDED.title,
	poster_path   = EXCLUDED.poster_path,
	backdrop_path = COALESCE(EXCLUDED.backdrop_path, user_favorites.backdrop_path),
	overview      = COALESCE(EXCLUDED.overview, user_favorites.overview),
	release_date  = COALESCE(EXCLUDED.release_date, user_favorites.release_date),
	vote_average  = EXCLUDED.vote_average,
	popularity    = COALESCE(EXCLUDED.popularity, user_favorites.popularity),
	genres        = COALESCE(EXCLUDED.genres, user_favorites.genres),
	updated_at    = NOW()`

	deleteFavorite = `DELETE FROM user_favorites WHERE user_id = $1 AND media_id = $2 AND category = $3`
)

// FavoritesRepository is the Postgres-backed per-user favorites store.
type FavoritesRepository struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewFavoritesRepository(pool *pgxpool.Pool, logger *logrus.Logger) (*FavoritesRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &FavoritesRepository{pool: pool, logger: logger}, nil
}

// FetchAll returns the favorites of userID in the order they were added.
func (r *FavoritesRepository) FetchAll(ctx context.Context, userID string) ([]models.FavoriteRecord, error) {
	log := r.logger.WithFields(logrus.Fields{
		"component": "FavoritesRepository",
		"method":    "FetchAll",
		"user_id":   userID,
	})

	rows, err := r.pool.Query(ctx, selectFavorites, userID)
	if err != nil {
		log.WithError(err).Error("Failed to query favorites")
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	records := []models.FavoriteRecord{}
	for rows.Next() {
		record, err := scanFavorite(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan favorite row")
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Error during favorites iteration")
		return nil, fmt.Errorf("error during favorites iteration: %w", err)
	}

	log.WithField("count", len(records)).Debug("Favorites fetched")
	return records, nil
}

// Add stores record for userID, updating the stored copy when it exists.
func (r *FavoritesRepository) Add(ctx context.Context, userID string, record models.FavoriteRecord) error {
	log := r.logger.WithFields(logrus.Fields{
		"component": "FavoritesRepository",
		"method":    "Add",
		"user_id":   userID,
		"favorite":  record.Key().String(),
	})

	genres, err := encodeGenres(record.Genres)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, upsertFavorite,
		userID, record.ID, string(record.Category), record.Title, record.PosterPath,
		record.BackdropPath, record.Overview, record.ReleaseDate, record.VoteAverage,
		record.Popularity, genres,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "23514" || pgErr.Code == "23502") {
			log.WithField("pg_code", pgErr.Code).Warn("Favorite violates a table constraint")
			return fmt.Errorf("%w: %s", ErrRejected, pgErr.Message)
		}
		log.WithError(err).Error("Failed to add favorite")
		return fmt.Errorf("failed to add favorite: %w", err)
	}

	log.Debug("Favorite stored")
	return nil
}

func (r *FavoritesRepository) Remove(ctx context.Context, userID string, key models.Key) error {
	log := r.logger.WithFields(logrus.Fields{
		"component": "FavoritesRepository",
		"method":    "Remove",
		"user_id":   userID,
		"favorite":  key.String(),
	})

	tag, err := r.pool.Exec(ctx, deleteFavorite, userID, key.ID, string(key.Category))
	if err != nil {
		log.WithError(err).Error("Failed to remove favorite")
		return fmt.Errorf("failed to remove favorite: %w", err)
	}

	if tag.RowsAffected() == 0 {
		log.Warn("Attempted to remove a favorite that did not exist")
	} else {
		log.Debug("Favorite removed")
	}
	return nil
}

func scanFavorite(row pgx.Row) (models.FavoriteRecord, error) {
	var (
		record   models.FavoriteRecord
		category string
		genres   []byte
	)
	err := row.Scan(
		&record.ID, &category, &record.Title, &record.PosterPath, &record.BackdropPath,
		&record.Overview, &record.ReleaseDate, &record.VoteAverage, &record.Popularity, &genres,
	)
	if err != nil {
		return models.FavoriteRecord{}, fmt.Errorf("failed to scan favorite: %w", err)
	}
	record.Category = models.Category(category)

	record.Genres, err = decodeGenres(genres)
	if err != nil {
		return models.FavoriteRecord{}, err
	}
	return record, nil
}

// encodeGenres maps "unknown" (nil) to SQL NULL so an upsert never erases
// genres that are already stored.
func encodeGenres(genres []models.Genre) ([]byte, error) {
	if genres == nil {
		return nil, nil
	}
	raw, err := json.Marshal(genres)
	if err != nil {
		return nil, fmt.Errorf("failed to encode genres: %w", err)
	}
	return raw, nil
}

func decodeGenres(raw []byte) ([]models.Genre, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var genres []models.Genre
	if err := json.Unmarshal(raw, &genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres: %w", err)
	}
	return genres, nil
}
