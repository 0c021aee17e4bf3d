// Package main is the entry point for the portfolio analysis service: a
// real-time WebSocket backend that streams five simulated metrics per
// ticker back to a connected client while a background loop keeps each
// session's portfolio valuation current.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onexdata/stock-portfolio-analysis/internal/config"
	"github.com/onexdata/stock-portfolio-analysis/internal/gateway"
	"github.com/onexdata/stock-portfolio-analysis/internal/housekeeping"
	"github.com/onexdata/stock-portfolio-analysis/internal/market"
	"github.com/onexdata/stock-portfolio-analysis/internal/metrics"
	"github.com/onexdata/stock-portfolio-analysis/internal/observability"
	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
	"github.com/onexdata/stock-portfolio-analysis/internal/session"
	"github.com/onexdata/stock-portfolio-analysis/internal/transport"
	"github.com/onexdata/stock-portfolio-analysis/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting portfolio analysis service")

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()
	if err := rdb.Ping(bootCtx).Err(); err != nil {
		log.Fatal().Err(err).Msg("document store unreachable")
	}

	gw := gateway.NewRedisGateway(rdb, cfg.SessionTTL)
	if err := gw.Bootstrap(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to register gateway scripts")
	}
	log.Info().Msg("gateway scripts registered")

	repo := repository.New(gw)
	kernels := metrics.NewRegistry(metrics.DelayRange{Min: cfg.MetricDelayMin, Max: cfg.MetricDelayMax})

	promRegistry := prometheus.NewRegistry()
	obsMetrics := observability.New(promRegistry)

	registry := session.NewRegistry(obsMetrics)

	updater := market.NewUpdater(repo, cfg.MarketInterval, cfg.BasePrices, log)
	updaterCtx, updaterCancel := context.WithCancel(context.Background())
	updater.Start(updaterCtx)
	log.Info().Dur("interval", cfg.MarketInterval).Msg("market updater started")

	housekeepingScheduler := housekeeping.New(log)
	if err := housekeepingScheduler.AddJob("0 * * * * *", housekeeping.NewSessionCountJob(registry, log)); err != nil {
		log.Fatal().Err(err).Msg("failed to register housekeeping job")
	}
	housekeepingScheduler.Start()

	srv := transport.New(transport.Config{
		Log:          log,
		Repo:         repo,
		Registry:     registry,
		Kernels:      kernels,
		Metrics:      obsMetrics,
		PromRegistry: promRegistry,
		IdleTimeout:  cfg.IdleTimeout,
		Port:         cfg.HTTPPort,
		DevMode:      cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()
	log.Info().Int("port", cfg.HTTPPort).Msg("http server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	housekeepingScheduler.Stop()

	updater.Stop()
	updaterCancel()
	log.Info().Msg("market updater stopped")

	for _, c := range registry.Snapshot() {
		c.Close()
	}
	log.Info().Int("count", registry.Count()).Msg("session controllers drained")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
