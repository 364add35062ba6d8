//go:build integration
// +build integration

package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/demand-forecast-client/internal/models"
)

func integrationClient(t *testing.T) *ForecastClient {
	t.Helper()
	baseURL := os.Getenv("FORECAST_API_URL")
	if baseURL == "" {
		t.Skip("FORECAST_API_URL not set, skipping integration test")
	}
	c, err := New(baseURL, WithForecastTimeout(15*time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestForecastClient_CheckHealth_Integration(t *testing.T) {
	c := integrationClient(t)

	health := c.CheckHealth(context.Background())
	if !health.Healthy() {
		t.Fatalf("CheckHealth() = %+v, want healthy", health)
	}
	if !health.ModelLoaded {
		t.Error("CheckHealth() reports model not loaded")
	}
}

func TestForecastClient_GetForecast_Integration(t *testing.T) {
	c := integrationClient(t)
	ctx := context.Background()

	regions, err := c.GetRegions(ctx)
	if err != nil {
		t.Fatalf("GetRegions() error = %v", err)
	}
	if len(regions) == 0 {
		t.Skip("forecast service reports no regions")
	}

	resp, err := c.GetForecast(ctx, models.ForecastRequest{Region: regions[0].Name, MonthsAhead: 3})
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if len(resp.Forecast) != 3 {
		t.Errorf("len(Forecast) = %d, want 3", len(resp.Forecast))
	}
	if resp.ModelVersion == "" {
		t.Error("GetForecast() returned empty model version")
	}
}
