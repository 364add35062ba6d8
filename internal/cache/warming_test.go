package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/demand-forecast-client/internal/models"
)

type mockForecastRefresher struct {
	mu       sync.Mutex
	requests []models.ForecastRequest
	failFor  map[string]error
}

func (m *mockForecastRefresher) RefreshForecast(ctx context.Context, req models.ForecastRequest) (models.ForecastResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := m.failFor[req.Region]; err != nil {
		return models.ForecastResponse{}, err
	}
	return models.ForecastResponse{Region: req.Region}, nil
}

func (m *mockForecastRefresher) regions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r.Region)
	}
	sort.Strings(out)
	return out
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockForecastRefresher{}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"Pune", "Maharashtra", "Haveli"}, 12)
	if err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	got := fetcher.regions()
	want := []string{"Haveli", "Maharashtra", "Pune"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("warmed regions = %v, want %v", got, want)
	}
	for _, req := range fetcher.requests {
		if req.MonthsAhead != 12 {
			t.Errorf("MonthsAhead = %d, want 12", req.MonthsAhead)
		}
	}
}

func TestCacheWarmer_Warm_EmptyRegions(t *testing.T) {
	fetcher := &mockForecastRefresher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil, 6); err != nil {
		t.Fatalf("Warm() with nil regions error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}, 6); err != nil {
		t.Fatalf("Warm() with empty regions error = %v, want nil", err)
	}
}

// TestCacheWarmer_Warm_FetcherError verifies that one failing region does not stop
// the others and that its error is reported.
func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	apiDown := errors.New("api down")
	fetcher := &mockForecastRefresher{failFor: map[string]error{"Pune": apiDown}}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"Pune", "Mumbai"}, 6)
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want wrapping %v", err, apiDown)
	}
	if !strings.Contains(err.Error(), "warm Pune") {
		t.Errorf("Warm() error = %q, want region in message", err)
	}
	if n := len(fetcher.regions()); n != 2 {
		t.Errorf("fetch attempts = %d, want 2", n)
	}
}

func TestCacheWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	fetcher := &mockForecastRefresher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- warmer.WarmPeriodic(ctx, []string{"Pune"}, 6, 10*time.Millisecond)
	}()
	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic() did not return after cancel")
	}
	if n := len(fetcher.regions()); n < 1 {
		t.Errorf("warm runs = %d, want at least one tick", n)
	}
}

// TestCacheWarmer_WarmPeriodic_NoRunBeforeFirstTick verifies that the periodic loop
// leaves the startup warm to its caller.
func TestCacheWarmer_WarmPeriodic_NoRunBeforeFirstTick(t *testing.T) {
	fetcher := &mockForecastRefresher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- warmer.WarmPeriodic(ctx, []string{"Pune"}, 6, time.Hour)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if n := len(fetcher.regions()); n != 0 {
		t.Errorf("warm runs before first tick = %d, want 0", n)
	}
}
