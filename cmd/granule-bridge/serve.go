package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/earthdata/granule-bridge/internal/core/executor"
	"github.com/earthdata/granule-bridge/internal/core/health"
	"github.com/earthdata/granule-bridge/internal/core/httpclient"
	"github.com/earthdata/granule-bridge/internal/core/server"
	"github.com/earthdata/granule-bridge/internal/granules"
	h3mapper "github.com/earthdata/granule-bridge/internal/mapper/h3"
	"github.com/earthdata/granule-bridge/internal/metrics"
	"github.com/earthdata/granule-bridge/internal/opensearch"
	"github.com/earthdata/granule-bridge/internal/searchevents"
	"github.com/earthdata/granule-bridge/internal/searchstats"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP granule search service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	log := a.log
	log.Info("starting granule-bridge",
		"addr", cfg.Addr,
		"version", Version,
		"osdd_base_url", cfg.OSDDBaseURL)

	fetch := httpclient.NewFetcher(httpclient.NewOutbound(cfg.UpstreamTimeout), cfg.ClientID)
	resolver := opensearch.NewResolver(log, fetch, cfg.OSDDBaseURL, cfg.OSDDClientID)
	exec := executor.New(log, fetch)

	opts := []granules.Option{}
	deps := server.Deps{Ready: map[string]health.Check{}}

	if cfg.Stats.Enabled {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		stats, err := searchstats.New(pctx, cfg.Stats.RedisAddr,
			searchstats.WithPrefix(cfg.Stats.Prefix),
			searchstats.WithTTL(cfg.Stats.TTL),
			searchstats.WithPoolSize(cfg.Stats.PoolSize),
			searchstats.WithDialTimeout(cfg.Stats.DialTimeout))
		cancel()
		if err != nil {
			log.Error("search stats disabled", "err", err)
		} else {
			defer func() { _ = stats.Close() }()
			opts = append(opts, granules.WithRecorder("stats", stats))
			deps.Stats = stats
			deps.Ready["stats"] = stats.Ping
		}
	}

	if cfg.Events.Enabled {
		pub, err := searchevents.NewPublisher(log, searchevents.Config{
			Brokers:   cfg.Events.Brokers,
			Topic:     cfg.Events.Topic,
			Queue:     cfg.Events.Queue,
			H3Res:     cfg.Events.H3Res,
			ParentRes: cfg.Events.H3ParentRes,
		}, h3mapper.New())
		if err != nil {
			log.Error("search events disabled", "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					log.Warn("search events close", "err", err)
				}
			}()
			opts = append(opts, granules.WithRecorder("events", pub))
		}
	}
	if cfg.Stats.OpTimeout > 0 {
		opts = append(opts, granules.WithRecordTimeout(cfg.Stats.OpTimeout))
	}

	deps.Search = granules.NewService(log, resolver, exec, cfg.ResponseHeaders, opts...)

	if cfg.Metrics.Enabled {
		p, err := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		if err != nil {
			return err
		}
		if cfg.Metrics.Addr == "" || cfg.Metrics.Addr == cfg.Addr {
			deps.Metrics = p.Handler()
		} else {
			server.ServeMetrics(ctx, log, cfg.Metrics.Addr, p.Path(), p.Handler())
		}
	}

	if err := server.Run(ctx, cfg, log, deps); err != nil {
		log.Error("server exited with error", "err", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
