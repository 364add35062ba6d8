package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/demand-forecast-client/internal/models"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
)

// DefaultInterval is how often the forecasting service health is polled.
const DefaultInterval = 60 * time.Second

// HealthChecker is implemented by the forecast client.
type HealthChecker interface {
	CheckHealth(ctx context.Context) models.HealthStatus
}

// HealthPoller polls the forecasting service health on a fixed interval and
// keeps the latest snapshot for the gateway's own health endpoint.
type HealthPoller struct {
	checker  HealthChecker
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	latest   models.HealthStatus
	polledAt time.Time
	polled   bool
}

// New creates a HealthPoller. A non-positive interval uses DefaultInterval.
func New(checker HealthChecker, interval time.Duration, logger *zap.Logger) *HealthPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthPoller{checker: checker, interval: interval, logger: logger}
}

// Run polls immediately, then on every tick until ctx is done.
func (p *HealthPoller) Run(ctx context.Context) {
	p.Poll(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one health check and records it. Status transitions are logged.
func (p *HealthPoller) Poll(ctx context.Context) models.HealthStatus {
	status := p.checker.CheckHealth(ctx)

	p.mu.Lock()
	prev, hadPrev := p.latest, p.polled
	p.latest = status
	p.polledAt = time.Now()
	p.polled = true
	p.mu.Unlock()

	observability.HealthPollsTotal.WithLabelValues(status.Status).Inc()
	if status.Healthy() {
		observability.UpstreamHealthy.Set(1)
	} else {
		observability.UpstreamHealthy.Set(0)
	}

	switch {
	case !hadPrev:
		p.logger.Info("forecast service health",
			zap.String("status", status.Status),
			zap.Bool("model_loaded", status.ModelLoaded),
			zap.String("version", status.Version))
	case prev.Status != status.Status:
		log := p.logger.Info
		if !status.Healthy() {
			log = p.logger.Warn
		}
		log("forecast service health changed",
			zap.String("from", prev.Status),
			zap.String("to", status.Status),
			zap.Bool("model_loaded", status.ModelLoaded))
	}
	return status
}

// Latest returns the last polled status and when it was taken.
// ok is false until the first poll completes.
func (p *HealthPoller) Latest() (status models.HealthStatus, polledAt time.Time, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.polledAt, p.polled
}
