package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/earthdata/granule-bridge/internal/core/config"
	"github.com/earthdata/granule-bridge/internal/core/health"
	middleware "github.com/earthdata/granule-bridge/internal/core/middleware"
	"github.com/earthdata/granule-bridge/internal/core/router"
)

// Deps are the handlers the HTTP surface is built from. Nil optional fields disable their routes.
type Deps struct {
	Search  router.SearchHandler
	Stats   router.StatsReader
	Ready   map[string]health.Check
	Metrics http.Handler
}

// Routes builds the chi router for cfg.
func Routes(cfg config.Config, logger *slog.Logger, d Deps) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, d.Ready))

	// set only when metrics are enabled without a dedicated listener
	if d.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Get(path, d.Metrics.ServeHTTP)
	}

	search := router.HandleSearch(logger, d.Search)
	var limit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		mw, err := middleware.RateLimit(logger, middleware.RateLimitConfig{
			RPS:        cfg.RateLimit.RPS,
			Burst:      cfg.RateLimit.Burst,
			KeyHeader:  cfg.RateLimit.KeyHeader,
			TrustXFF:   cfg.RateLimit.TrustXFF,
			MaxClients: cfg.RateLimit.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		limit = mw
	}
	r.Group(func(g chi.Router) {
		if limit != nil {
			g.Use(limit)
		}
		g.Get("/granules/opensearch", search)
		g.Post("/granules/opensearch", search)
	})

	if d.Stats != nil {
		r.Get("/stats", router.HandleStatsSummary(logger, d.Stats))
		r.Get("/stats/collections/{id}", router.HandleCollectionStats(logger, d.Stats))
	}
	return r, nil
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	h, err := Routes(cfg, logger, d)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout*2 + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// ServeMetrics runs a dedicated metrics listener until ctx ends.
func ServeMetrics(ctx context.Context, logger *slog.Logger, addr, path string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("metrics listen", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server exited", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown error", "err", err)
		}
	}()
}
