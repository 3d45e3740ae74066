package models

// MovieDetails is the subset of the TMDB /movie/{id} payload the favorites
// subsystem cares about. Every field may be null in the provider response.
type MovieDetails struct {
	ID           *int     `json:"id"`
	Title        *string  `json:"title"`
	PosterPath   *string  `json:"poster_path"`
	BackdropPath *string  `json:"backdrop_path"`
	Overview     *string  `json:"overview"`
	ReleaseDate  *string  `json:"release_date"`
	VoteAverage  *float64 `json:"vote_average"`
	Popularity   *float64 `json:"popularity"`
	Genres       []Genre  `json:"genres"`
}
