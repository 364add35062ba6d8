package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/demand-forecast-client/internal/models"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
)

// scriptedChecker returns the queued statuses in order, repeating the last one.
type scriptedChecker struct {
	mu       sync.Mutex
	statuses []models.HealthStatus
	calls    int
}

func (s *scriptedChecker) CheckHealth(ctx context.Context) models.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	s.calls++
	return s.statuses[i]
}

func (s *scriptedChecker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	healthy   = models.HealthStatus{Status: models.HealthStatusHealthy, ModelLoaded: true, Version: "1.0.0"}
	unhealthy = models.UnhealthyStatus(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
)

func TestHealthPoller_LatestBeforePoll(t *testing.T) {
	p := New(&scriptedChecker{statuses: []models.HealthStatus{healthy}}, time.Minute, nil)
	if _, _, ok := p.Latest(); ok {
		t.Error("Latest() ok = true before first poll, want false")
	}
}

// TestHealthPoller_Poll verifies that Poll records the snapshot and the upstream gauge.
func TestHealthPoller_Poll(t *testing.T) {
	checker := &scriptedChecker{statuses: []models.HealthStatus{healthy, unhealthy}}
	p := New(checker, time.Minute, nil)

	p.Poll(context.Background())
	got, polledAt, ok := p.Latest()
	if !ok || got != healthy {
		t.Fatalf("Latest() = %+v, %v; want healthy", got, ok)
	}
	if polledAt.IsZero() {
		t.Error("polledAt is zero")
	}
	if v := testutil.ToFloat64(observability.UpstreamHealthy); v != 1 {
		t.Errorf("upstreamHealthy = %v, want 1", v)
	}

	p.Poll(context.Background())
	if got, _, _ := p.Latest(); got.Status != models.HealthStatusUnhealthy {
		t.Errorf("Latest().Status = %q, want unhealthy", got.Status)
	}
	if v := testutil.ToFloat64(observability.UpstreamHealthy); v != 0 {
		t.Errorf("upstreamHealthy = %v, want 0", v)
	}
}

func TestHealthPoller_LogsTransitionsOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	checker := &scriptedChecker{statuses: []models.HealthStatus{healthy, healthy, unhealthy, unhealthy, healthy}}
	p := New(checker, time.Minute, zap.New(core))

	for i := 0; i < 5; i++ {
		p.Poll(context.Background())
	}

	if n := logs.FilterMessage("forecast service health").Len(); n != 1 {
		t.Errorf("initial status logs = %d, want 1", n)
	}
	changes := logs.FilterMessage("forecast service health changed").All()
	if len(changes) != 2 {
		t.Fatalf("transition logs = %d, want 2", len(changes))
	}
	if changes[0].Level != zapcore.WarnLevel {
		t.Errorf("healthy->unhealthy level = %v, want warn", changes[0].Level)
	}
	if changes[1].Level != zapcore.InfoLevel {
		t.Errorf("unhealthy->healthy level = %v, want info", changes[1].Level)
	}
}

func TestHealthPoller_RunPollsImmediatelyAndStops(t *testing.T) {
	checker := &scriptedChecker{statuses: []models.HealthStatus{healthy}}
	p := New(checker, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if n := checker.count(); n < 2 {
		t.Errorf("polls = %d, want immediate poll plus ticks", n)
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(&scriptedChecker{statuses: []models.HealthStatus{healthy}}, 0, nil)
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}
