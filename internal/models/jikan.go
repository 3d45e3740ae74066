package models

type JikanAnimeResponse struct {
	Data AnimeData `json:"data"`
}

type AnimeData struct {
	MalID        int          `json:"mal_id"`
	Title        string       `json:"title"`
	TitleEnglish string       `json:"title_english"`
	Score        float64      `json:"score"`
	Members      int          `json:"members"`
	Synopsis     string       `json:"synopsis"`
	Images       Images       `json:"images"`
	JikanGenres  []JikanGenre `json:"genres"`
	Year         int          `json:"year"`
	Aired        Aired        `json:"aired"`
}

type Images struct {
	JPG ImageURL `json:"jpg"`
}

type ImageURL struct {
	ImageURL      string `json:"image_url"`
	LargeImageURL string `json:"large_image_url"`
}

type JikanGenre struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
}

type Aired struct {
	From string `json:"from"`
}

// DisplayTitle prefers the English title like the catalog cards do.
func (a AnimeData) DisplayTitle() string {
	if a.TitleEnglish != "" {
		return a.TitleEnglish
	}
	return a.Title
}

// Favorite builds the toggle-time record for an anime. Jikan returns full
// metadata, so the result is always Complete.
func (a AnimeData) Favorite() FavoriteRecord {
	poster := a.Images.JPG.LargeImageURL
	if poster == "" {
		poster = a.Images.JPG.ImageURL
	}

	genres := make([]Genre, 0, len(a.JikanGenres))
	for _, g := range a.JikanGenres {
		genres = append(genres, Genre{ID: g.MalID, Name: g.Name})
	}

	popularity := float64(a.Members)
	rec := FavoriteRecord{
		ID:          a.MalID,
		Category:    CategoryAnime,
		Title:       a.DisplayTitle(),
		PosterPath:  poster,
		VoteAverage: a.Score,
		Popularity:  &popularity,
		Genres:      genres,
	}
	if a.Synopsis != "" {
		synopsis := a.Synopsis
		rec.Overview = &synopsis
	}
	if len(a.Aired.From) >= len("2006-01-02") {
		date := a.Aired.From[:len("2006-01-02")]
		rec.ReleaseDate = &date
	}
	return rec
}
