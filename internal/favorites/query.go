package favorites

import (
	"sort"
	"time"

	"streamflux/internal/models"
)

type SortOrder string

const (
	SortPopularity  SortOrder = "popularity.desc"
	SortVoteAverage SortOrder = "vote_average.desc"
	SortReleaseDate SortOrder = "release_date.desc"
)

// Filter keeps the records tagged with genreID. Records without genre data
// are kept since they may match once enriched. genreID 0 keeps everything.
func Filter(records []models.FavoriteRecord, genreID int) []models.FavoriteRecord {
	out := make([]models.FavoriteRecord, 0, len(records))
	for _, r := range records {
		if genreID == 0 || r.Genres == nil || r.HasGenre(genreID) {
			out = append(out, r)
		}
	}
	return out
}

// Sort returns a sorted copy. Unknown orders keep the input order.
func Sort(records []models.FavoriteRecord, order SortOrder) []models.FavoriteRecord {
	out := make([]models.FavoriteRecord, len(records))
	copy(out, records)

	var less func(a, b models.FavoriteRecord) bool
	switch order {
	case SortPopularity:
		less = func(a, b models.FavoriteRecord) bool { return popularity(a) > popularity(b) }
	case SortVoteAverage:
		less = func(a, b models.FavoriteRecord) bool { return a.VoteAverage > b.VoteAverage }
	case SortReleaseDate:
		less = func(a, b models.FavoriteRecord) bool { return releaseDate(a).After(releaseDate(b)) }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type Counts struct {
	Total  int `json:"total"`
	Movies int `json:"movies"`
	Anime  int `json:"anime"`
}

func Count(records []models.FavoriteRecord) Counts {
	c := Counts{Total: len(records)}
	for _, r := range records {
		switch r.Category {
		case models.CategoryMovie:
			c.Movies++
		case models.CategoryAnime:
			c.Anime++
		}
	}
	return c
}

func popularity(r models.FavoriteRecord) float64 {
	if r.Popularity == nil {
		return 0
	}
	return *r.Popularity
}

func releaseDate(r models.FavoriteRecord) time.Time {
	if r.ReleaseDate == nil {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", *r.ReleaseDate)
	if err != nil {
		return time.Time{}
	}
	return t
}
