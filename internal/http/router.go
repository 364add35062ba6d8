package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/demand-forecast-client/internal/observability"
)

// RouterConfig carries the middleware settings of the gateway router.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
	AllowedOrigins []string
}

// NewRouter wires the gateway routes and middleware around h.
// /health and /metrics skip the rate limiter and timeout; /api routes get both.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/regions", h.GetRegions).Methods(http.MethodGet)
	api.HandleFunc("/forecast/{region}", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.PostForecast).Methods(http.MethodPost)
	api.HandleFunc("/upstream/health", h.GetUpstreamHealth).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", h.GetCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache", h.ClearCache).Methods(http.MethodDelete)

	return RecoveryMiddleware(logger)(CORSMiddleware(cfg.AllowedOrigins)(router))
}
