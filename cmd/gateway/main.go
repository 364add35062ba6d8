package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/demand-forecast-client/internal/cache"
	"github.com/kjstillabower/demand-forecast-client/internal/client"
	"github.com/kjstillabower/demand-forecast-client/internal/config"
	httphandler "github.com/kjstillabower/demand-forecast-client/internal/http"
	"github.com/kjstillabower/demand-forecast-client/internal/observability"
	"github.com/kjstillabower/demand-forecast-client/internal/poller"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = httphandler.DefaultVersion

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheTTL, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cfg.CacheTTL)
		logger.Info("cache backend: in_memory")
	}

	forecastClient, err := client.New(cfg.ForecastAPIURL,
		client.WithCache(cacheSvc),
		client.WithForecastTimeout(cfg.ForecastAPITimeout),
		client.WithHealthTimeout(cfg.HealthTimeout),
		client.WithLogger(logger),
		client.WithCoalescing(cfg.CacheCoalesce),
	)
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	logger.Info("forecast client ready",
		zap.String("base_url", forecastClient.BaseURL()),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("coalesce", cfg.CacheCoalesce))

	if len(cfg.TrackedRegions) > 0 {
		observability.SetTrackedRegions(cfg.TrackedRegions)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	healthPoller := poller.New(forecastClient, cfg.HealthPollInterval, logger)
	go healthPoller.Run(bgCtx)

	if len(cfg.WarmRegions) > 0 {
		warmer := cache.NewCacheWarmer(forecastClient, logger)
		warmCtx, warmCancel := context.WithTimeout(bgCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmRegions, cfg.WarmMonthsAhead); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				err := warmer.WarmPeriodic(bgCtx, cfg.WarmRegions, cfg.WarmMonthsAhead, cfg.WarmInterval)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	healthConfig := &httphandler.HealthConfig{
		StartTime: time.Now(),
		Version:   version,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecastClient, healthPoller, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetDraining(true)
	bgCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
