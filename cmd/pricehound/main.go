package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/pricehound/api"
	"github.com/use-agent/pricehound/cache"
	"github.com/use-agent/pricehound/config"
	"github.com/use-agent/pricehound/enrich"
	"github.com/use-agent/pricehound/metrics"
	"github.com/use-agent/pricehound/renderer"
	"github.com/use-agent/pricehound/scrape"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("pricehound starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"poolSize", cfg.Browser.PoolSize,
		"containerMode", cfg.Scraper.ContainerMode,
		"cacheBackend", cfg.Cache.Backend,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	// ── 3. Cache store ──────────────────────────────────────────────
	store, err := newStore(ctx, cfg.Cache)
	if err != nil {
		slog.Error("failed to initialise cache", "error", err)
		os.Exit(1)
	}
	layer := cache.NewLayer(store, cfg.Cache.FullTTL, cfg.Cache.PageTTL, m)

	// ── 4. Browser and session pool ─────────────────────────────────
	browser, err := renderer.Launch(cfg.Browser, cfg.Scraper.ContainerMode)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	pool := renderer.NewPool(cfg.Browser.PoolSize, browser.NewSession, renderer.WithMaxAge(cfg.Browser.SessionMaxAge))
	m.WatchPool(pool.Stats)

	// ── 5. Scraper and enrichment ───────────────────────────────────
	orch, err := scrape.New(pool, cfg.Scraper, cfg.Selectors, m)
	if err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}
	prober := enrich.NewHTTPProber(enrich.NewClient(cfg.Enrich.ClientTimeout, cfg.Enrich.MaxConns))
	pipeline := enrich.NewPipeline(prober, cfg.Enrich, m)

	// ── 6. Router and HTTP server ───────────────────────────────────
	router := api.NewRouter(ctx, cfg, api.Deps{
		Scraper:        orch,
		Enricher:       pipeline,
		Cache:          layer,
		PoolStats:      pool.Stats,
		Metrics:        m,
		MetricsHandler: metrics.Handler(),
	}, time.Now())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Sessions before the browser that owns them; the cache last.
	pool.Close()
	browser.Close()
	if err := layer.Close(); err != nil {
		slog.Warn("cache close failed", "error", err)
	}
	stop()
	slog.Info("pricehound stopped")
}

func newStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return cache.NewRedisStore(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return cache.NewMemoryStore(cfg.MaxEntries, time.Minute), nil
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
