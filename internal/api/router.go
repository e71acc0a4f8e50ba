package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NewRouter sets up routes and applies global middleware.
func NewRouter(h *Handler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Trace(logger), Observe(logger), CORS(allowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.Ping)
		r.Post("/fetch-metadata", h.FetchMetadata)
		r.Post("/fetch", h.FetchMetadata)

		r.Post("/download", h.StartDownload)
		r.Get("/download/stream", h.Stream)
		r.Get("/download/status/{id}", h.Status)
		r.Get("/download/file/{filename}", h.File)
	})

	return r
}
