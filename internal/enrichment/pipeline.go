// Package enrichment completes movie favorites that were bookmarked before
// their popularity and genres were known.
package enrichment

import (
	"context"
	"errors"
	"fmt"

	"streamflux/internal/models"
	"streamflux/internal/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchSize = 5

// ErrEnrichmentFailed wraps a per-record fetch failure. It never escapes
// Enrich; the record is returned unenriched instead.
var ErrEnrichmentFailed = errors.New("enrichment failed")

// MovieEnricher fetches full movie details. It is satisfied by
// services.MovieClient.
type MovieEnricher interface {
	GetDetails(ctx context.Context, id int) (*models.MovieDetails, error)
}

type Pipeline struct {
	movies MovieEnricher
	memo   *session.Memo
	logger *logrus.Logger
}

func NewPipeline(movies MovieEnricher, sc *session.Context, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{movies: movies, memo: sc.Memo, logger: logger}
}

// NeedsEnrichment reports whether Enrich would issue any fetch for records.
func (p *Pipeline) NeedsEnrichment(records []models.FavoriteRecord) bool {
	for _, r := range records {
		if r.Category == models.CategoryMovie && !r.Complete() && !p.memo.Has(r.Key()) {
			return true
		}
	}
	return false
}

// Enrich returns records in their input order with incomplete movie records
// filled in from the movie provider. Chunks of batchSize records are fetched
// concurrently, one chunk after the other. A record whose fetch fails is
// returned as it was and retried on the next call.
func (p *Pipeline) Enrich(ctx context.Context, records []models.FavoriteRecord, batchSize int) []models.FavoriteRecord {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := models.CloneRecords(records)
	if out == nil {
		return []models.FavoriteRecord{}
	}

	var pending []int
	for i, r := range out {
		if r.Category != models.CategoryMovie {
			continue
		}
		if r.Complete() {
			p.memo.Mark(r.Key())
			continue
		}
		if p.memo.Has(r.Key()) {
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return out
	}

	log := p.logger.WithFields(logrus.Fields{"pending": len(pending), "batch_size": batchSize})
	log.Debug("Enriching favorites")

	failed := 0
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		chunk := pending[start:end]
		results := make([]error, len(chunk))

		var g errgroup.Group
		for j, idx := range chunk {
			g.Go(func() error {
				results[j] = p.enrichOne(ctx, &out[idx])
				return nil
			})
		}
		_ = g.Wait()

		for j, err := range results {
			if err != nil {
				failed++
				log.WithError(err).WithField("media_id", out[chunk[j]].ID).Warn("Falling back to unenriched favorite")
			}
		}
	}

	log.WithField("failed", failed).Debug("Enrichment pass finished")
	return out
}

// enrichOne merges fetched details into *record. Distinct goroutines work on
// distinct elements, so no locking is needed.
func (p *Pipeline) enrichOne(ctx context.Context, record *models.FavoriteRecord) error {
	details, err := p.movies.GetDetails(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEnrichmentFailed, record.Key(), err)
	}
	if details == nil {
		return fmt.Errorf("%w: %s: empty response", ErrEnrichmentFailed, record.Key())
	}

	*record = Merge(*record, details)
	p.memo.Mark(record.Key())
	return nil
}

// Merge overlays the fields present in details onto record. Absent fetched
// fields, and empty genre lists, keep what record already had.
func Merge(record models.FavoriteRecord, details *models.MovieDetails) models.FavoriteRecord {
	if details.Title != nil && *details.Title != "" {
		record.Title = *details.Title
	}
	if details.PosterPath != nil && *details.PosterPath != "" {
		record.PosterPath = *details.PosterPath
	}
	if details.BackdropPath != nil {
		v := *details.BackdropPath
		record.BackdropPath = &v
	}
	if details.Overview != nil {
		v := *details.Overview
		record.Overview = &v
	}
	if details.ReleaseDate != nil {
		v := *details.ReleaseDate
		record.ReleaseDate = &v
	}
	if details.VoteAverage != nil {
		record.VoteAverage = *details.VoteAverage
	}
	if details.Popularity != nil {
		v := *details.Popularity
		record.Popularity = &v
	}
	if len(details.Genres) > 0 {
		record.Genres = append([]models.Genre(nil), details.Genres...)
	}
	return record
}
