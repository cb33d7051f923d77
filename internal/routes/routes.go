package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	handlers "github.com/JulianIrigoyen/imho-real-estate-agent/internal/http"
	mid "github.com/JulianIrigoyen/imho-real-estate-agent/internal/middleware"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
)

func GetRoutes(h *handlers.Handler, metrics *obs.Metrics, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)    // proper client IP extraction
	r.Use(middleware.RequestID) // sets request ID header
	r.Use(middleware.Recoverer) // avoid panics taking the server down

	r.Use(mid.MetricsMiddleware(metrics))
	r.Use(mid.LoggingMiddleware(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/search", h.Search)
	r.Get("/listings", h.Listings)
	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		handlers.NotFound(w, "no such route", map[string]string{"path": req.URL.Path})
	})

	return r
}
