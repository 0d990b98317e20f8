// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
	"github.com/use-agent/workflowrunner/internal/cache"
	"github.com/use-agent/workflowrunner/internal/config"
	"github.com/use-agent/workflowrunner/internal/ratelimit"
)

// Application holds all application dependencies and manages their
// lifecycle. It is created once at startup and shared across all CLI
// commands. Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Cache       cache.Cache
	BrowserPool *browserdriver.Pool
	RateLimiter ratelimit.RateLimiter
	startTime   time.Time
}

// New creates and initializes a new Application with all dependencies: the
// logger, the extraction cache, the rate limiter, and the shared browser
// allocator. If any step fails, an error is returned and no resources are
// allocated.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logLevel := zerolog.ErrorLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.NewConsoleWriter()
	}

	logger := log.Output(logWriter).With().Timestamp().Logger()
	logger.Debug().Str("level", cfg.LogLevel).Bool("json", cfg.JSONLog).Msg("logger initialized")

	memCache := cache.NewMemoryCache(cfg.CacheMaxSizeBytes)
	logger.Debug().Int64("max_size_bytes", cfg.CacheMaxSizeBytes).Msg("extraction cache initialized")

	rateLimiter := ratelimit.NewDomainLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	logger.Debug().
		Float64("rps", cfg.RateLimitRPS).
		Int("burst", cfg.RateLimitBurst).
		Msg("rate limiter initialized")

	pool, err := browserdriver.NewPool(browserdriver.PoolOptions{
		Headless:  cfg.Headless,
		UserAgent: cfg.UserAgent,
		Proxy:     cfg.Proxy,
		Proxies:   cfg.Proxies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser allocator: %w", err)
	}
	logger.Debug().Bool("headless", cfg.Headless).Msg("browser pool initialized")

	app := &Application{
		Config:      cfg,
		Logger:      &logger,
		Cache:       memCache,
		BrowserPool: pool,
		RateLimiter: rateLimiter,
		startTime:   time.Now(),
	}

	logger.Info().Msg("application initialized successfully")
	return app, nil
}

// Close gracefully shuts down the application and all its resources: the
// browser pool, then the cache. Errors during shutdown are logged but do
// not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("shutting down application")

	if a.BrowserPool != nil {
		if err := a.BrowserPool.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("error closing browser pool")
		}
	}

	if a.Cache != nil {
		a.Cache.Close()
	}

	uptime := time.Since(a.startTime)
	a.Logger.Info().Dur("uptime", uptime).Msg("application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
