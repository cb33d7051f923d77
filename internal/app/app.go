package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/config"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
	handlers "github.com/JulianIrigoyen/imho-real-estate-agent/internal/http"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/routes"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/sources"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/storage"
)

type App struct {
	Router      http.Handler
	Aggregator  engine.AggregatorService
	Cache       engine.CacheService
	RateLimiter engine.RateLimiter
	Metrics     *obs.Metrics
	Store       *storage.PostgresStore // nil when persistence is off
	Logger      *slog.Logger
}

// New wires every component from configuration. The simulated sources are
// the default wiring; swap in APIAdapters per platform via env or code.
func New(ctx context.Context, cfg *config.Config) *App {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	adapters := []sources.Adapter{
		sources.NewSimAdapter("zonaprop", 0.2, 0.10, 0),
		sources.NewSimAdapter("argenprop", 0.25, 0.12, 1),
		sources.NewSimAdapter("mercadolibre", 0.15, 0.05, 2),
	}

	registry := prometheus.NewRegistry()
	metrics := obs.NewMetrics(registry)

	policy := engine.NewRetryPolicy(cfg.Engine.MaxAttempts, cfg.Engine.BaseBackoff, cfg.Engine.PerAttemptTimeout)
	sched := engine.NewScheduler(cfg.Engine, policy, metrics, logger)
	norm := engine.NewNormalizer("ARS")
	matcher := engine.NewMatcher(cfg.Engine)
	agg := engine.NewAggregator(adapters, sched, norm, matcher, cfg.Engine.QueryDeadline, metrics, logger)

	cache := engine.NewCache(cfg.CacheTTL, metrics)
	rl := engine.NewIPRateLimiter(cfg.RateLimitCap, cfg.RateLimitRefill)

	var store *storage.PostgresStore
	var storeIface engine.ListingStore
	var recent handlers.RecentLister
	if dsn := cfg.DSN(); dsn != "" {
		st, err := storage.NewPostgresStore(ctx, dsn)
		if err != nil {
			logger.Warn("listing store unavailable, continuing without persistence", "err", err)
		} else {
			store = st
			storeIface = st
			recent = st
		}
	}

	// The service timeout leaves headroom over the fetch deadline for
	// normalization and clustering.
	svc := engine.NewService(agg, cache, storeIface, cfg.Engine.QueryDeadline+2*time.Second, logger)
	h := handlers.NewHandler(svc, recent, rl, metrics)
	router := routes.GetRoutes(h, metrics, logger)

	return &App{
		Router:      router,
		Aggregator:  agg,
		Cache:       cache,
		RateLimiter: rl,
		Metrics:     metrics,
		Store:       store,
		Logger:      logger,
	}
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
