package websocket

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luciancaetano/fiftysocket/internal/health"
	"github.com/luciancaetano/fiftysocket/internal/metrics"
)

// routes builds the HTTP surface: the upgrade endpoint on every allowed
// path, /health, optionally /metrics, and 404 for everything else.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Group(func(r chi.Router) {
		r.Use(rejectUpgrades)
		r.With(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		})).Get("/health", health.Handler(s.engine))

		if s.metricsEnabled {
			r.Get("/metrics", promhttp.Handler().ServeHTTP)
		}
	})

	r.Group(func(r chi.Router) {
		if s.upgradeRateLimit > 0 {
			r.Use(httprate.Limit(s.upgradeRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					metrics.RecordRejectedUpgrade("rate_limit")
					http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				}),
			))
		}
		for _, path := range s.paths {
			r.Get(path, s.handleWebSocket)
		}
	})

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	if isUpgrade(r) {
		metrics.RecordRejectedUpgrade("path")
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("Not Found"))
}

// rejectUpgrades keeps upgrade requests away from plain HTTP endpoints.
func rejectUpgrades(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			notFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
