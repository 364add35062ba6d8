package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match how the client, http and cache
// packages use each metric.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/api/forecast/{region}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/forecast/{region}").Observe(0.01)
	ForecastAPICallsTotal.WithLabelValues("forecast", "2xx").Inc()
	ForecastAPIDuration.WithLabelValues("forecast", "2xx").Observe(0.1)
	ForecastAPIErrorsTotal.WithLabelValues("health", "timeout").Inc()
	CacheHitsTotal.WithLabelValues("forecast").Inc()
	CacheMissesTotal.WithLabelValues("regions").Inc()
	CacheErrorsTotal.WithLabelValues("clear").Inc()
	HealthPollsTotal.WithLabelValues("healthy").Inc()
	UpstreamHealthy.Set(1)
	CacheWarmingDurationSeconds.Observe(0.5)
}

func TestRecordForecastQuery_TrackedAndOther(t *testing.T) {
	SetTrackedRegions([]string{"Pune", " Maharashtra "})
	defer SetTrackedRegions(nil)

	pune := ForecastQueriesByRegionTotal.WithLabelValues("pune")
	other := ForecastQueriesByRegionTotal.WithLabelValues("other")
	beforePune, beforeOther := testutil.ToFloat64(pune), testutil.ToFloat64(other)
	beforeTotal := testutil.ToFloat64(ForecastQueriesTotal)

	RecordForecastQuery("PUNE")
	RecordForecastQuery("Atlantis")
	RecordForecastQuery("maharashtra")

	if got := testutil.ToFloat64(pune) - beforePune; got != 1 {
		t.Errorf("pune delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(other) - beforeOther; got != 1 {
		t.Errorf("other delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ForecastQueriesTotal) - beforeTotal; got != 3 {
		t.Errorf("total delta = %v, want 3", got)
	}
}

func TestMetricRegionLabel(t *testing.T) {
	if got := MetricRegionLabel("  Navi Mumbai "); got != "navi mumbai" {
		t.Errorf("MetricRegionLabel() = %q, want %q", got, "navi mumbai")
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// the private registry in text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "upstreamHealthy", "forecastQueriesTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
