package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/demand-forecast-client/internal/models"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
)

// maxConcurrentWarms bounds simultaneous forecast requests during a warm.
const maxConcurrentWarms = 4

// ForecastRefresher is implemented by the forecast client. RefreshForecast skips the
// cache read and stores what it fetches, so each call restarts the entry's TTL.
type ForecastRefresher interface {
	RefreshForecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResponse, error)
}

// CacheWarmer prefetches forecasts for a fixed list of regions.
type CacheWarmer struct {
	refresher ForecastRefresher
	logger    *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given refresher and logger.
func NewCacheWarmer(refresher ForecastRefresher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{refresher: refresher, logger: logger}
}

// Warm refreshes the monthsAhead forecast for each region, at most
// maxConcurrentWarms at a time. Failures are joined into the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, regions []string, monthsAhead int) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("regions", len(regions)), zap.Int("months_ahead", monthsAhead))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, maxConcurrentWarms)
	for _, region := range regions {
		region := region
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			_, err := w.refresher.RefreshForecast(ctx, models.ForecastRequest{Region: region, MonthsAhead: monthsAhead})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", region, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("regions", len(regions)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic calls Warm on every interval tick until ctx is done. It does not warm
// at start; callers run Warm first. Entries refreshed more often than the cache TTL
// never expire.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, regions []string, monthsAhead int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, regions, monthsAhead); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
