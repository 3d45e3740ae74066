package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Identity)
	r.Use(RequestLogger(h.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/favorites", func(r chi.Router) {
		r.Get("/", h.ListFavorites)
		r.Post("/toggle", h.ToggleFavorite)
		r.Post("/anime/{id}/toggle", h.ToggleAnime)
		r.Get("/{category}/{id}", h.GetFavorite)
	})

	r.Get("/movies/{id}", h.GetMovie)

	r.Get("/profile", h.GetProfile)
	r.Put("/profile", h.UpdateProfile)

	r.Get("/ws", h.Changes)

	return r
}
