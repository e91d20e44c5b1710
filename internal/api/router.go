package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds and returns the Chi router with all routes configured.
// Health and metrics are unauthenticated; session and POI routes require bearer auth.
// Rate limiting is applied globally: 60 requests per minute per IP.
func NewRouter(handlers *Handlers, token string, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(httprate.LimitByIP(60, time.Minute))

	r.Get("/api/v1/health", HealthHandlerFunc(db, redisClient, log))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(token))

		r.Post("/api/v1/sessions", handlers.CreateSession)
		r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetSession)
			r.Delete("/", handlers.EndSession)
			r.Post("/position", handlers.PushPosition)
			r.Get("/pois/{kind}", handlers.ListPOIs)
			r.Put("/destination", handlers.SetDestination)
			r.Delete("/destination", handlers.ClearDestination)
			r.Get("/map", handlers.GetMap)
			r.Put("/camera", handlers.SetCamera)
			r.Post("/markers/hide", handlers.HideMarkers)
			r.Post("/markers/reveal", handlers.RevealMarkers)
			r.Get("/notices", handlers.GetNotices)
		})

		r.Put("/api/v1/pois/{kind}/{poiID}", handlers.UpsertPOI)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
