package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trunov/freshconnect-images/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/blob/{id}", h.Blob)

	r.Route("/api", func(r chi.Router) {
		r.Route("/images", func(r chi.Router) {
			r.Post("/", h.UploadImage)
			r.Post("/validate", h.ValidateImage)
			r.Post("/preview", h.PreviewImage)
		})

		r.Route("/references", func(r chi.Router) {
			r.Post("/clean", h.CleanReference)
			r.Post("/revive", h.ReviveReferences)
			r.Get("/expired", h.IsExpiredReference)
		})

		r.Get("/listings", h.LoadListings)
		r.Put("/listings", h.SaveListings)
	})

	return r
}
