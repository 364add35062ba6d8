package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/demand-forecast-client/internal/client"
	"github.com/kjstillabower/demand-forecast-client/internal/models"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
	"github.com/kjstillabower/demand-forecast-client/internal/validation"
)

// maxRequestBodyBytes bounds POST /api/forecast bodies.
const maxRequestBodyBytes = 1 << 20

// Gateway health states.
const (
	statusHealthy      = "healthy"
	statusDegraded     = "degraded"
	statusShuttingDown = "shutting-down"
)

// UpstreamHealth reports the latest polled forecasting service status.
type UpstreamHealth interface {
	Latest() (status models.HealthStatus, polledAt time.Time, ok bool)
}

// DefaultVersion is reported by /health when no build version is configured.
const DefaultVersion = "dev"

// HealthConfig holds optional inputs for the health handler.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	StartTime time.Time
	Version   string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	client       client.ForecastAPI
	upstream     UpstreamHealth
	healthConfig *HealthConfig
	version      string
	logger       *zap.Logger

	draining atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. upstream and healthConfig may be nil.
func NewHandler(api client.ForecastAPI, upstream UpstreamHealth, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	version := DefaultVersion
	if healthConfig != nil && healthConfig.Version != "" {
		version = healthConfig.Version
	}
	return &Handler{
		client:       api,
		upstream:     upstream,
		healthConfig: healthConfig,
		version:      version,
		logger:       logger,
	}
}

// SetDraining marks the gateway as shutting down; /health then answers 503.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// GetRegions handles GET /api/regions.
func (h *Handler) GetRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.client.GetRegions(r.Context())
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"regions": regions})
}

// GetForecast handles GET /api/forecast/{region}?months=&confidence=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	region, err := validation.ValidateRegion(mux.Vars(r)["region"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REGION", err.Error(), "")
		return
	}
	q := r.URL.Query()
	months, err := validation.ParseMonths(q.Get("months"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MONTHS", err.Error(), "")
		return
	}
	confidence, err := validation.ParseBool(q.Get("confidence"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), "")
		return
	}

	h.serveForecast(w, r, models.ForecastRequest{
		Region:            region,
		MonthsAhead:       months,
		IncludeConfidence: confidence,
	})
}

// PostForecast handles POST /api/forecast with a ForecastRequest JSON body.
func (h *Handler) PostForecast(w http.ResponseWriter, r *http.Request) {
	var req models.ForecastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON forecast request", err.Error())
		return
	}
	region, err := validation.ValidateRegion(req.Region)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REGION", err.Error(), "")
		return
	}
	req.Region = region
	if req.MonthsAhead != 0 {
		if err := validation.ValidateMonths(req.MonthsAhead); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_MONTHS", err.Error(), "")
			return
		}
	}

	h.serveForecast(w, r, req)
}

func (h *Handler) serveForecast(w http.ResponseWriter, r *http.Request, req models.ForecastRequest) {
	observability.RecordForecastQuery(req.Region)
	resp, err := h.client.GetForecast(r.Context(), req)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUpstreamHealth handles GET /api/upstream/health with a live check.
// Always 200: the body carries the forecasting service status.
func (h *Handler) GetUpstreamHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.client.CheckHealth(r.Context()))
}

// GetCacheStats handles GET /api/cache/stats.
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.client.CacheStats())
}

// ClearCache handles DELETE /api/cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.client.ClearCache(r.Context()); err != nil {
		loggerFrom(r, h.logger).Error("cache clear failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "CACHE_CLEAR_FAILED", "Unable to clear cache", "")
		return
	}
	writeJSON(w, http.StatusOK, h.client.CacheStats())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"forecastApi": "unknown"}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   h.version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.upstream != nil {
		if latest, polledAt, ok := h.upstream.Latest(); ok {
			checks["forecastApi"] = latest.Status
			resp["upstream"] = map[string]interface{}{
				"status":      latest.Status,
				"modelLoaded": latest.ModelLoaded,
				"version":     latest.Version,
				"checkedAt":   polledAt.UTC().Format(time.RFC3339),
			}
		}
	}
	if h.healthConfig != nil {
		if !h.healthConfig.StartTime.IsZero() {
			resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
		}
		if h.healthConfig.CachePing != nil {
			if h.healthConfig.CachePing() == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
			}
		}
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus decides the gateway status in priority order:
// shutting-down > degraded (last upstream poll unhealthy) > healthy.
// Degraded stays 200 because cached forecasts are still served.
func (h *Handler) computeHealthStatus() healthResult {
	if h.draining.Load() {
		return healthResult{statusShuttingDown, http.StatusServiceUnavailable, "signal"}
	}
	if h.upstream != nil {
		if latest, _, ok := h.upstream.Latest(); ok && !latest.Healthy() {
			return healthResult{statusDegraded, http.StatusOK, "upstream_unhealthy"}
		}
	}
	return healthResult{statusHealthy, http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

// writeError writes an error response in the standard error format with code, message,
// details and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	writeJSON(w, status, errorEnvelope{Error: errorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: observability.CorrelationID(r.Context()),
	}})
}

// clientErrorResponse maps a client error to the gateway status and error code.
func clientErrorResponse(err error) (int, string) {
	apiErr, ok := client.AsAPIError(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL"
	}
	switch apiErr.Kind {
	case client.KindTimeout:
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case client.KindNetwork:
		return http.StatusBadGateway, "UPSTREAM_UNREACHABLE"
	case client.KindHTTP:
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status, "UPSTREAM_REJECTED"
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	if apiErr.Status == http.StatusBadRequest {
		return http.StatusBadRequest, "INVALID_REQUEST"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// writeClientError writes the gateway response for a forecast client error.
// Logs the underlying error at DEBUG level if a logger is available in request context.
func writeClientError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := clientErrorResponse(err)
	message, details := "Unable to reach the forecast service", ""
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		message, details = apiErr.Message, apiErr.Details
	}
	writeError(w, r, status, code, message, details)
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("upstream error", zap.String("code", code), zap.Error(err))
	}
}

func loggerFrom(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if l := observability.LoggerFromContext(r.Context()); l != nil {
		return l
	}
	return fallback
}

// routeLabel renders the matched mux route template for metrics, e.g. /api/forecast/{region}.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

func statusCodeString(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
