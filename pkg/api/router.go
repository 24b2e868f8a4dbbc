package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/yeep/internal/logger"
)

// NewRouter creates the chi router of the status server.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/session - Session state, 503 when it cannot be renewed
//   - GET /metrics - Prometheus metrics from gatherer (omitted when nil)
func NewRouter(health *HealthHandler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/session", health.Session)
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs requests with the internal logger. Scrapes are
// frequent, so completion is logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("Status request completed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.DurationMs(start),
		)
	})
}
