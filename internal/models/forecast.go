package models

import (
	"strings"
	"time"
)

// DefaultMonthsAhead is the forecast horizon used when a request leaves it unset.
const DefaultMonthsAhead = 6

// ForecastRequest describes a demand forecast query for one region.
// Zero MonthsAhead and nil IncludeConfidence mean "use the default".
type ForecastRequest struct {
	Region            string             `json:"region"`
	MonthsAhead       int                `json:"months_ahead,omitempty"`
	IncludeConfidence *bool              `json:"include_confidence,omitempty"`
	Features          map[string]float64 `json:"features,omitempty"`
}

// Normalized returns a copy with defaults applied: 6 months, confidence intervals on.
func (r ForecastRequest) Normalized() ForecastRequest {
	out := r
	if out.MonthsAhead == 0 {
		out.MonthsAhead = DefaultMonthsAhead
	}
	if out.IncludeConfidence == nil {
		include := true
		out.IncludeConfidence = &include
	}
	return out
}

// ConfidenceRequested reports whether confidence intervals are asked for (default true).
func (r ForecastRequest) ConfidenceRequested() bool {
	return r.IncludeConfidence == nil || *r.IncludeConfidence
}

// ForecastDataPoint is a single month of predicted demand in million liters per day.
type ForecastDataPoint struct {
	Month           string   `json:"month"`
	DemandMLD       float64  `json:"demand_mld"`
	ConfidenceLower *float64 `json:"confidence_lower,omitempty"`
	ConfidenceUpper *float64 `json:"confidence_upper,omitempty"`
}

// ForecastMetadata carries server-side details. Cached reflects the forecasting
// service's own cache, not the client cache.
type ForecastMetadata struct {
	MonthsForecasted int      `json:"months_forecasted"`
	FeaturesUsed     []string `json:"features_used"`
	Cached           bool     `json:"cached"`
}

type ForecastResponse struct {
	Region          string              `json:"region"`
	Forecast        []ForecastDataPoint `json:"forecast"`
	ModelVersion    string              `json:"model_version"`
	GeneratedAt     string              `json:"generated_at"`
	ConfidenceLevel float64             `json:"confidence_level"`
	Metadata        ForecastMetadata    `json:"metadata"`
}

// RegionType classifies a region in the administrative hierarchy.
type RegionType string

const (
	RegionTypeState    RegionType = "state"
	RegionTypeDistrict RegionType = "district"
	RegionTypeCity     RegionType = "city"
)

type Region struct {
	Name string     `json:"name"`
	Type RegionType `json:"type"`
}

// Health status values reported by the forecasting service.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// healthTimestampLayout matches the millisecond UTC form the dashboard expects.
const healthTimestampLayout = "2006-01-02T15:04:05.000Z"

type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version"`
}

// Healthy reports whether the service declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return strings.EqualFold(h.Status, HealthStatusHealthy)
}

// UnhealthyStatus is the synthesized result returned when a health check fails.
func UnhealthyStatus(now time.Time) HealthStatus {
	return HealthStatus{
		Status:      HealthStatusUnhealthy,
		ModelLoaded: false,
		Timestamp:   now.UTC().Format(healthTimestampLayout),
		Version:     "unknown",
	}
}

// CacheStats is a diagnostic snapshot of the client cache. Keys may include expired entries.
type CacheStats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}
