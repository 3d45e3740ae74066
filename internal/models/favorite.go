package models

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryMovie Category = "movie"
	CategoryAnime Category = "anime"
)

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryMovie:
		return CategoryMovie, nil
	case CategoryAnime:
		return CategoryAnime, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

func (c Category) Valid() bool {
	return c == CategoryMovie || c == CategoryAnime
}

// Key identifies a favorite. Provider ids are only unique per category.
type Key struct {
	ID       int      `json:"id"`
	Category Category `json:"category"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Category, k.ID)
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// FavoriteRecord is a bookmarked item plus enough denormalized metadata to
// render a card. ID, Category, Title and PosterPath are always present;
// nil pointer fields and a nil Genres slice mean "not known yet".
type FavoriteRecord struct {
	ID           int      `json:"id"`
	Category     Category `json:"category"`
	Title        string   `json:"title"`
	PosterPath   string   `json:"poster_path"`
	BackdropPath *string  `json:"backdrop_path,omitempty"`
	Overview     *string  `json:"overview,omitempty"`
	ReleaseDate  *string  `json:"release_date,omitempty"`
	VoteAverage  float64  `json:"vote_average"`
	Popularity   *float64 `json:"popularity,omitempty"`
	Genres       []Genre  `json:"genres,omitempty"`
}

func (r FavoriteRecord) Key() Key {
	return Key{ID: r.ID, Category: r.Category}
}

// Complete reports whether the enrichment-dependent fields are filled in.
func (r FavoriteRecord) Complete() bool {
	return r.Popularity != nil && len(r.Genres) > 0
}

func (r FavoriteRecord) HasGenre(id int) bool {
	for _, g := range r.Genres {
		if g.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand records out without sharing
// pointer fields with the stored set.
func (r FavoriteRecord) Clone() FavoriteRecord {
	c := r
	c.BackdropPath = cloneString(r.BackdropPath)
	c.Overview = cloneString(r.Overview)
	c.ReleaseDate = cloneString(r.ReleaseDate)
	if r.Popularity != nil {
		p := *r.Popularity
		c.Popularity = &p
	}
	if r.Genres != nil {
		c.Genres = make([]Genre, len(r.Genres))
		copy(c.Genres, r.Genres)
	}
	return c
}

// Backfill fills the fields r does not know yet from src. Fields r already
// has are kept.
func (r FavoriteRecord) Backfill(src FavoriteRecord) FavoriteRecord {
	if r.BackdropPath == nil {
		r.BackdropPath = cloneString(src.BackdropPath)
	}
	if r.Overview == nil {
		r.Overview = cloneString(src.Overview)
	}
	if r.ReleaseDate == nil {
		r.ReleaseDate = cloneString(src.ReleaseDate)
	}
	if r.Popularity == nil && src.Popularity != nil {
		p := *src.Popularity
		r.Popularity = &p
	}
	if len(r.Genres) == 0 && len(src.Genres) > 0 {
		r.Genres = append([]Genre(nil), src.Genres...)
	}
	if r.VoteAverage == 0 {
		r.VoteAverage = src.VoteAverage
	}
	return r
}

func CloneRecords(records []FavoriteRecord) []FavoriteRecord {
	if records == nil {
		return nil
	}
	out := make([]FavoriteRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
