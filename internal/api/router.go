package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/analytics/track", apiHandler.TrackHandler)
		r.Post("/admin/auth", apiHandler.AdminAuthHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.AdminAuthMiddleware)

			r.Post("/admin/upload", apiHandler.UploadHandler)
			r.Get("/admin/analytics/stats", apiHandler.StatsHandler)
		})
	})

	return r
}
