package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/demand-forecast-client/internal/cache"
	"github.com/kjstillabower/demand-forecast-client/internal/models"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
)

const (
	DefaultBaseURL         = "http://localhost:8000"
	DefaultForecastTimeout = 10 * time.Second
	DefaultHealthTimeout   = 5 * time.Second

	// RegionsCacheKey is the fixed cache key of the region list.
	RegionsCacheKey = "regions_list"

	maxResponseBytes = 10 << 20
)

// Endpoint labels used in metrics and logs.
const (
	endpointForecast = "forecast"
	endpointRegions  = "regions"
	endpointHealth   = "health"
)

// ErrInvalidBaseURL is returned by New when the base URL cannot be used.
var ErrInvalidBaseURL = errors.New("invalid forecast service URL")

// ForecastAPI is the client surface consumed by the gateway, the health poller and the cache warmer.
type ForecastAPI interface {
	GetForecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResponse, error)
	GetRegions(ctx context.Context) ([]models.Region, error)
	CheckHealth(ctx context.Context) models.HealthStatus
	ClearCache(ctx context.Context) error
	CacheStats() models.CacheStats
}

// ForecastClient talks to the forecasting service. Forecasts and the region list
// are cached; health checks always hit the network and never fail.
// Safe for concurrent use.
type ForecastClient struct {
	baseURL         string
	httpClient      *http.Client
	cache           cache.Cache
	forecastTimeout time.Duration
	healthTimeout   time.Duration
	logger          *zap.Logger
	coalescer       *requestCoalescer
	now             func() time.Time
}

// Option configures a ForecastClient.
type Option func(*ForecastClient)

// WithCache replaces the default in-memory cache.
func WithCache(c cache.Cache) Option {
	return func(fc *ForecastClient) { fc.cache = c }
}

// WithForecastTimeout bounds forecast and region calls.
func WithForecastTimeout(d time.Duration) Option {
	return func(fc *ForecastClient) {
		if d > 0 {
			fc.forecastTimeout = d
		}
	}
}

// WithHealthTimeout bounds health checks.
func WithHealthTimeout(d time.Duration) Option {
	return func(fc *ForecastClient) {
		if d > 0 {
			fc.healthTimeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(fc *ForecastClient) {
		if hc != nil {
			fc.httpClient = hc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(fc *ForecastClient) {
		if l != nil {
			fc.logger = l
		}
	}
}

// WithCoalescing makes concurrent cache misses on one key share a single request.
func WithCoalescing(enabled bool) Option {
	return func(fc *ForecastClient) {
		if enabled {
			fc.coalescer = newRequestCoalescer()
		} else {
			fc.coalescer = nil
		}
	}
}

// WithClock sets the clock used for health timestamps and for the default cache.
func WithClock(now func() time.Time) Option {
	return func(fc *ForecastClient) {
		if now != nil {
			fc.now = now
		}
	}
}

// New creates a ForecastClient for baseURL (DefaultBaseURL when empty).
// Without WithCache the client owns a fresh in-memory cache with the default TTL.
func New(baseURL string, opts ...Option) (*ForecastClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidBaseURL)
	}

	c := &ForecastClient{
		baseURL:         baseURL,
		httpClient:      &http.Client{},
		forecastTimeout: DefaultForecastTimeout,
		healthTimeout:   DefaultHealthTimeout,
		logger:          zap.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.NewInMemoryCacheWithClock(cache.DefaultTTL, c.now)
	}
	return c, nil
}

// BaseURL returns the normalized forecasting service URL.
func (c *ForecastClient) BaseURL() string {
	return c.baseURL
}

// ForecastCacheKey is the cache key of a forecast: lowercased region and horizon.
// The confidence flag is deliberately not part of the key.
func ForecastCacheKey(region string, monthsAhead int) string {
	return fmt.Sprintf("%s_%d", strings.ToLower(region), monthsAhead)
}

// forecastPayload is the wire body of POST /api/forecast.
type forecastPayload struct {
	Region            string             `json:"region"`
	MonthsAhead       int                `json:"months_ahead"`
	IncludeConfidence bool               `json:"include_confidence"`
	Features          map[string]float64 `json:"features,omitempty"`
}

type regionsEnvelope struct {
	Regions []models.Region `json:"regions"`
}

// errorBody is the optional error shape of a non-2xx response. detail may be a
// string or a structured validation report.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  json.RawMessage `json:"error"`
}

// GetForecast returns the demand forecast for req, from cache when a valid entry exists.
// Every error is an *APIError.
func (c *ForecastClient) GetForecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResponse, error) {
	req, err := validateForecastRequest(req)
	if err != nil {
		return models.ForecastResponse{}, err
	}

	var out models.ForecastResponse
	err = c.cached(ctx, endpointForecast, ForecastCacheKey(req.Region, req.MonthsAhead), func(ctx context.Context) ([]byte, error) {
		return c.fetchForecast(ctx, req)
	}, &out)
	if err != nil {
		return models.ForecastResponse{}, err
	}
	return out, nil
}

// RefreshForecast fetches req from the forecasting service without reading the cache
// and stores the result, restarting the entry's TTL. The cache warmer uses it so a
// refresh interval shorter than the TTL keeps entries valid. Every error is an *APIError.
func (c *ForecastClient) RefreshForecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResponse, error) {
	req, err := validateForecastRequest(req)
	if err != nil {
		return models.ForecastResponse{}, err
	}

	var out models.ForecastResponse
	err = c.load(ctx, c.loggerFor(ctx), endpointForecast, ForecastCacheKey(req.Region, req.MonthsAhead), func(ctx context.Context) ([]byte, error) {
		return c.fetchForecast(ctx, req)
	}, &out)
	if err != nil {
		return models.ForecastResponse{}, err
	}
	return out, nil
}

// validateForecastRequest rejects unusable input without network access and applies defaults.
func validateForecastRequest(req models.ForecastRequest) (models.ForecastRequest, error) {
	if strings.TrimSpace(req.Region) == "" {
		return req, newUnknownError(http.StatusBadRequest, "region is required", nil)
	}
	if req.MonthsAhead < 0 {
		return req, newUnknownError(http.StatusBadRequest, "months_ahead must be positive", nil)
	}
	return req.Normalized(), nil
}

// GetRegions returns the regions the forecasting service knows about, cached under RegionsCacheKey.
func (c *ForecastClient) GetRegions(ctx context.Context) ([]models.Region, error) {
	var out []models.Region
	if err := c.cached(ctx, endpointRegions, RegionsCacheKey, c.fetchRegions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckHealth queries the service health. It is never cached and never fails:
// any error yields an unhealthy status stamped with the current time.
func (c *ForecastClient) CheckHealth(ctx context.Context) models.HealthStatus {
	logger := c.loggerFor(ctx)

	status, body, err := c.call(ctx, endpointHealth, http.MethodGet, "/health", nil, c.healthTimeout)
	if err == nil && !isSuccess(status) {
		err = newHTTPError(status, "Health check failed", "")
	}
	var health models.HealthStatus
	if err == nil {
		if jsonErr := json.Unmarshal(body, &health); jsonErr != nil {
			err = newUnknownError(StatusUnknown, "parse health response", jsonErr)
		}
	}
	if err != nil {
		apiErr := normalizeError(ctx, err)
		observability.ForecastAPIErrorsTotal.WithLabelValues(endpointHealth, string(apiErr.Kind)).Inc()
		logger.Warn("health check failed",
			zap.String("kind", string(apiErr.Kind)),
			zap.Int("status", apiErr.Status),
			zap.Error(apiErr))
		return models.UnhealthyStatus(c.now())
	}
	return health
}

// ClearCache empties the whole cache.
func (c *ForecastClient) ClearCache(ctx context.Context) error {
	if err := c.cache.Clear(ctx); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear cache: %w", err)
	}
	c.loggerFor(ctx).Info("cache cleared")
	return nil
}

// CacheStats reports entry count and keys without checking validity.
func (c *ForecastClient) CacheStats() models.CacheStats {
	keys := c.cache.Keys()
	return models.CacheStats{Size: len(keys), Keys: keys}
}

// cached serves key from cache or runs fetch, stores its payload and decodes into out.
func (c *ForecastClient) cached(ctx context.Context, endpoint, key string, fetch func(context.Context) ([]byte, error), out interface{}) error {
	logger := c.loggerFor(ctx)

	if body, ok := c.cacheGet(ctx, key, logger); ok {
		if err := json.Unmarshal(body, out); err == nil {
			observability.CacheHitsTotal.WithLabelValues(endpoint).Inc()
			logger.Debug("cache hit", zap.String("key", key))
			return nil
		}
		logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	observability.CacheMissesTotal.WithLabelValues(endpoint).Inc()
	return c.load(ctx, logger, endpoint, key, fetch, out)
}

// load runs fetch, shared with concurrent callers when coalescing is on, stores the
// payload under key and decodes it into out.
func (c *ForecastClient) load(ctx context.Context, logger *zap.Logger, endpoint, key string, fetch func(context.Context) ([]byte, error), out interface{}) error {
	fill := func() ([]byte, error) {
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cacheSet(ctx, key, body, logger)
		return body, nil
	}

	var body []byte
	var err error
	if c.coalescer != nil {
		var shared bool
		body, shared, err = c.coalescer.Do(ctx, key, fill)
		if shared && err == nil {
			observability.RequestCoalescingHitsTotal.Inc()
			logger.Debug("joined in-flight request", zap.String("key", key))
		}
	} else {
		body, err = fill()
	}
	if err != nil {
		return c.fail(logger, endpoint, normalizeError(ctx, err))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(logger, endpoint, newUnknownError(StatusUnknown, "decode "+endpoint+" payload", err))
	}
	return nil
}

func (c *ForecastClient) fetchForecast(ctx context.Context, req models.ForecastRequest) ([]byte, error) {
	start := time.Now()
	payload, err := json.Marshal(forecastPayload{
		Region:            req.Region,
		MonthsAhead:       req.MonthsAhead,
		IncludeConfidence: req.ConfidenceRequested(),
		Features:          req.Features,
	})
	if err != nil {
		return nil, newUnknownError(StatusUnknown, "encode forecast request", err)
	}

	status, body, err := c.call(ctx, endpointForecast, http.MethodPost, "/api/forecast", payload, c.forecastTimeout)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, parseErrorBody(status, body, "Forecast request failed")
	}

	var resp models.ForecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newUnknownError(StatusUnknown, "parse forecast response", err)
	}
	c.loggerFor(ctx).Info("forecast fetched",
		zap.String("region", req.Region),
		zap.Int("months_ahead", req.MonthsAhead),
		zap.Int("points", len(resp.Forecast)),
		zap.Duration("duration", time.Since(start)))
	return body, nil
}

func (c *ForecastClient) fetchRegions(ctx context.Context) ([]byte, error) {
	status, body, err := c.call(ctx, endpointRegions, http.MethodGet, "/api/regions", nil, c.forecastTimeout)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, parseErrorBody(status, body, "Failed to fetch regions")
	}

	var env regionsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newUnknownError(StatusUnknown, "parse regions response", err)
	}
	if env.Regions == nil {
		env.Regions = []models.Region{}
	}
	encoded, err := json.Marshal(env.Regions)
	if err != nil {
		return nil, newUnknownError(StatusUnknown, "encode regions", err)
	}
	c.loggerFor(ctx).Info("regions fetched", zap.Int("count", len(env.Regions)))
	return encoded, nil
}

// call performs one request bounded by timeout and returns the status and full body.
// The timeout context covers the body read, so a stalled body also surfaces as a timeout.
func (c *ForecastClient) call(ctx context.Context, endpoint, method, path string, payload []byte, timeout time.Duration) (int, []byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, method, path, payload)
	if err != nil {
		observeCall(endpoint, "error", start)
		return 0, nil, newUnknownError(StatusUnknown, "build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeCall(endpoint, "error", start)
		return 0, nil, normalizeError(reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observeCall(endpoint, "error", start)
		return resp.StatusCode, nil, normalizeError(reqCtx, fmt.Errorf("read response body: %w", err))
	}

	observeCall(endpoint, statusLabel(resp.StatusCode), start)
	return resp.StatusCode, body, nil
}

func (c *ForecastClient) buildRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func (c *ForecastClient) cacheGet(ctx context.Context, key string, logger *zap.Logger) ([]byte, bool) {
	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return body, ok
}

func (c *ForecastClient) cacheSet(ctx context.Context, key string, body []byte, logger *zap.Logger) {
	if err := c.cache.Set(ctx, key, body); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// fail records a surfaced error and returns it unchanged.
func (c *ForecastClient) fail(logger *zap.Logger, endpoint string, apiErr *APIError) error {
	observability.ForecastAPIErrorsTotal.WithLabelValues(endpoint, string(apiErr.Kind)).Inc()
	logger.Warn("forecast service request failed",
		zap.String("endpoint", endpoint),
		zap.String("kind", string(apiErr.Kind)),
		zap.Int("status", apiErr.Status),
		zap.String("message", apiErr.Message),
		zap.String("details", apiErr.Details))
	return apiErr
}

func (c *ForecastClient) loggerFor(ctx context.Context) *zap.Logger {
	if l := observability.LoggerFromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

// parseErrorBody builds an HTTP error from a non-2xx body, falling back to
// fallback when the body is not the expected JSON.
func parseErrorBody(status int, body []byte, fallback string) *APIError {
	message := fallback
	details := ""
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if detail := rawText(eb.Detail); detail != "" {
			message = detail
		}
		details = rawText(eb.Error)
	}
	return newHTTPError(status, message, details)
}

// rawText renders a JSON value as text: strings unquoted, anything else verbatim.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func observeCall(endpoint, status string, start time.Time) {
	observability.ForecastAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ForecastAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func statusLabel(statusCode int) string {
	if isSuccess(statusCode) {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
