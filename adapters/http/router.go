package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpar/lexgate/adapters/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Route paths.
const (
	PathChat     = "/v1/chat"
	PathFeedback = "/v1/feedback"
	PathQuota    = "/v1/quota"
)

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler  // Optional; defaults to promhttp.Handler() when Metrics is set
	AdminHandler   http.Handler  // Optional admin API, mounted at /admin
	RequestTimeout time.Duration // Applies to every route except the chat stream
	Version        string
}

// NewRouter creates the main HTTP router.
func NewRouter(gw *GatewayHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// The chat stream is bounded by the provider stream timeout, not the request timeout.
	r.Post(PathChat, gw.Chat)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Post(PathFeedback, gw.Feedback)
		r.Get(PathQuota, gw.Quota)

		r.Get("/health", health.Liveness)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
		r.Get("/version", VersionHandler(cfg.Version))

		if cfg.MetricsHandler != nil {
			r.Handle("/metrics", cfg.MetricsHandler)
		} else if cfg.Metrics != nil {
			r.Handle("/metrics", promhttp.Handler())
		}

		if cfg.AdminHandler != nil {
			r.Mount("/admin", cfg.AdminHandler)
		}
	})

	return r
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipObservability(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.RequestDuration.
				WithLabelValues(r.Method, routePattern(r), statusLabel(ww.Status())).
				Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the matched chi pattern, keeping label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

func skipObservability(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skipObservability(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
