package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"streamflux/internal/events"
	"streamflux/internal/favorites"
	"streamflux/internal/models"
	"streamflux/internal/observer"
	"streamflux/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const maxBodySize = 1 << 20

type FavoritesStore interface {
	IsFavorite(b favorites.Backend, id int, category models.Category) bool
	ToggleFavorite(ctx context.Context, b favorites.Backend, record models.FavoriteRecord) (*favorites.Persist, error)
}

type Observers interface {
	Get(b favorites.Backend) (*observer.Observer, error)
}

type MovieDetails interface {
	GetDetails(ctx context.Context, id int) (*models.MovieDetails, error)
}

type AnimeResolver interface {
	AnimeFavorite(ctx context.Context, id int) (models.FavoriteRecord, error)
}

type Profiles interface {
	Get() (models.UserProfile, error)
	Update(profile models.UserProfile) (models.UserProfile, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Store     FavoritesStore
	Observers Observers
	Movies    MovieDetails
	Anime     AnimeResolver
	Profiles  Profiles
	Bus       *events.Bus
	Health    map[string]HealthCheck
	Logger    *logrus.Logger
}

type favoritesResponse struct {
	State  observer.State          `json:"state"`
	Items  []models.FavoriteRecord `json:"items"`
	Counts favorites.Counts        `json:"counts"`
	Error  string                  `json:"error,omitempty"`
}

type toggleResponse struct {
	Favorite  bool   `json:"favorite"`
	Persisted bool   `json:"persisted"`
	Warning   string `json:"warning,omitempty"`
}

func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	genre := 0
	if raw := r.URL.Query().Get("genre"); raw != "" {
		g, err := strconv.Atoi(raw)
		if err != nil || g < 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid genre")
			return
		}
		genre = g
	}
	order := favorites.SortOrder(r.URL.Query().Get("sort"))

	obs, err := h.Observers.Get(BackendFrom(r.Context()))
	if err != nil {
		h.log(r).WithError(err).Warn("Initial favorites load failed")
	}

	if r.URL.Query().Get("refresh") == "true" || obs.Snapshot().State == observer.StateIdle {
		_ = obs.Load(r.Context())
	} else {
		obs.Wait()
	}

	snap := obs.Snapshot()
	resp := favoritesResponse{
		State:  snap.State,
		Items:  favorites.Sort(favorites.Filter(snap.Records, genre), order),
		Counts: favorites.Count(snap.Records),
	}
	if snap.Err != nil {
		resp.Error = "favorites could not be refreshed, showing the last known list"
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) GetFavorite(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{
		"favorite": h.Store.IsFavorite(BackendFrom(r.Context()), id, category),
	})
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var record models.FavoriteRecord
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := json.Unmarshal(body, &record); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid favorite payload")
		return
	}

	h.toggle(w, r, record)
}

func (h *Handler) ToggleAnime(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	record, err := h.Anime.AnimeFavorite(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "anime not found")
			return
		}
		h.log(r).WithError(err).Warn("Failed to resolve anime")
		h.writeError(w, r, http.StatusBadGateway, "anime provider unavailable")
		return
	}

	h.toggle(w, r, record)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, record models.FavoriteRecord) {
	p, err := h.Store.ToggleFavorite(r.Context(), BackendFrom(r.Context()), record)
	if err != nil {
		if errors.Is(err, favorites.ErrInvalidToggleInput) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.log(r).WithError(err).Error("Failed to toggle favorite")
		h.writeError(w, r, http.StatusInternalServerError, "failed to toggle favorite")
		return
	}

	status := http.StatusOK
	resp := toggleResponse{Favorite: p.Added()}
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()
		if err := p.Wait(ctx); err != nil {
			status = http.StatusAccepted
			resp.Warning = "change not saved, it will be undone on the next reload"
			h.log(r).WithError(err).Warn("Favorite change not persisted")
		} else {
			resp.Persisted = true
		}
	} else {
		select {
		case <-p.Done():
			resp.Persisted = p.Wait(r.Context()) == nil
		default:
		}
	}

	h.writeJSON(w, r, status, resp)
}

func (h *Handler) GetMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	details, err := h.Movies.GetDetails(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.writeError(w, r, http.StatusNotFound, "movie not found")
			return
		}
		h.log(r).WithError(err).Warn("Failed to fetch movie details")
		h.writeError(w, r, http.StatusBadGateway, "movie provider unavailable")
		return
	}
	h.writeJSON(w, r, http.StatusOK, details)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Profiles.Get()
	if err != nil {
		h.log(r).WithError(err).Error("Failed to load profile")
		h.writeError(w, r, http.StatusInternalServerError, "failed to load profile")
		return
	}
	h.writeJSON(w, r, http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update models.UserProfile
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || json.Unmarshal(body, &update) != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid profile payload")
		return
	}

	profile, err := h.Profiles.Update(update)
	if err != nil {
		if errors.Is(err, services.ErrCountryAlreadySet) {
			h.writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		h.log(r).WithError(err).Error("Failed to update profile")
		h.writeError(w, r, http.StatusInternalServerError, "failed to update profile")
		return
	}
	h.writeJSON(w, r, http.StatusOK, profile)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Health))
	for name, check := range h.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	h.writeJSON(w, r, status, map[string]any{"status": state, "checks": checks})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		h.writeError(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log(r).WithError(err).Error("Failed to encode response")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, map[string]string{"error": msg})
}

func (h *Handler) log(r *http.Request) *logrus.Entry {
	return h.Logger.WithFields(logrus.Fields{
		"request_id": RequestIDFrom(r.Context()),
		"backend":    BackendFrom(r.Context()).String(),
	})
}
