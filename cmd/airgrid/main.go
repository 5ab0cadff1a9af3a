package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-risk-grid-service/internal/adapter/gridio"
	httpadapter "github.com/couchcryptid/air-risk-grid-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/air-risk-grid-service/internal/adapter/kafka"
	"github.com/couchcryptid/air-risk-grid-service/internal/adapter/obsfile"
	"github.com/couchcryptid/air-risk-grid-service/internal/config"
	"github.com/couchcryptid/air-risk-grid-service/internal/forecast"
	"github.com/couchcryptid/air-risk-grid-service/internal/fusion"
	"github.com/couchcryptid/air-risk-grid-service/internal/observability"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
	"github.com/couchcryptid/air-risk-grid-service/internal/store"
	"github.com/couchcryptid/air-risk-grid-service/internal/tile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	src := obsfile.New(cfg.ObservationsDir, logger)
	pipeline := fusion.New(
		src,
		fusion.Interpolator{StationRadiusDeg: cfg.StationRadiusDeg},
		fusion.Compositor{},
		cfg.ReferenceVar,
		logger,
		metrics,
	)

	gridStore := store.New(pipeline, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Seed from the on-disk artifact when present, so the query surface is
	// ready before the first fusion run completes.
	if cfg.ArtifactPath != "" {
		if grid, err := gridio.Load(ctx, cfg.ArtifactPath); err == nil {
			gridStore.Seed(grid)
			logger.Info("seeded grid from artifact", "path", cfg.ArtifactPath, "cells", len(grid.Lats)*len(grid.Lons))
		} else {
			logger.Warn("artifact unavailable, first request triggers a fusion run", "path", cfg.ArtifactPath, "error", err)
		}
	}

	queries := query.New(gridStore, logger)
	forecasts := forecast.New(gridStore, nil)
	tiles := tile.NewCachedRenderer(tile.NewRenderer(gridStore, logger), gridStore, cfg.TileCacheSize)

	srv := httpadapter.NewServer(
		cfg.HTTPAddr,
		queries,
		forecasts,
		tiles,
		logger,
		metrics,
		cfg.AlertThreshold,
		cfg.TileRenderTimeout,
	)

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		logger.Info("kafka alert publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	} else {
		logger.Info("kafka alert publishing disabled")
	}

	refresher := store.NewRefresher(gridStore, cfg.RefreshInterval, clockwork.NewRealClock(), logger)
	refresher.OnRefresh(func(ctx context.Context) {
		if publisher == nil {
			return
		}
		alerts, _, err := queries.Alerts(ctx, cfg.AlertThreshold)
		if err != nil {
			logger.Error("alert scan after refresh failed", "error", err)
			return
		}
		if len(alerts) == 0 {
			return
		}
		if err := publisher.PublishAlerts(ctx, alerts); err != nil {
			logger.Error("alert publish failed", "error", err, "count", len(alerts))
		}
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go refresher.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
