package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/feedrank/internal/middleware"
)

// ServiceName names the HTTP server in traces.
const ServiceName = "feedrank-api"

// RouterConfig wires the HTTP surface. Metrics, Gatherer, RateLimitStore
// and Tracing are optional.
type RouterConfig struct {
	Feed   *FeedHandlers
	Health *HealthHandlers
	Auth   middleware.TokenValidator

	RateLimitStore middleware.RateLimitStore
	RateLimit      middleware.RateLimitConfig

	Metrics  *middleware.Metrics
	Gatherer prometheus.Gatherer
	Tracing  bool
	Logger   *slog.Logger
}

// NewRouter builds the API handler with its middleware chain:
// RequestID -> Logging -> Tracing -> HTTPMetrics -> routes. Feed routes
// additionally pass through authentication and rate limiting.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	protect := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		if cfg.RateLimitStore != nil {
			handler = middleware.RateLimiter(cfg.RateLimitStore, cfg.RateLimit, middleware.ViewerKeyFunc(), cfg.Metrics)(handler)
		}
		return middleware.RequireAuth(cfg.Auth, cfg.Metrics)(handler)
	}

	mux := http.NewServeMux()
	get := func(pattern string, h http.Handler) {
		mux.Handle(http.MethodGet+" "+pattern, h)
		mux.HandleFunc(pattern, methodNotAllowed)
	}
	get("/feed", protect(cfg.Feed.GetFeed))
	get("/users/{id}/posts", protect(cfg.Feed.AuthorPosts))
	get("/health", http.HandlerFunc(cfg.Health.Health))
	get("/ready", http.HandlerFunc(cfg.Health.Ready))
	if cfg.Gatherer != nil {
		get("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", notFound)

	var handler http.Handler = mux
	if cfg.Metrics != nil {
		handler = middleware.HTTPMetrics(cfg.Metrics)(handler)
	}
	if cfg.Tracing {
		handler = middleware.Tracing(ServiceName)(handler)
	}
	handler = middleware.Logging(logger)(handler)
	return middleware.RequestID(handler)
}

// methodNotAllowed answers known paths requested with a method other than GET.
func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, HEAD")
	WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}

// notFound answers unmatched routes using the JSON error envelope.
func notFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
}
