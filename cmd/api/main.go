package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prism-infra/prism-sync/config"
	"github.com/prism-infra/prism-sync/internal/api/http/routes"
	"github.com/prism-infra/prism-sync/internal/bootstrap"
	"github.com/prism-infra/prism-sync/internal/changefeed"
	"github.com/prism-infra/prism-sync/internal/history"
	"github.com/prism-infra/prism-sync/internal/listview"
	"github.com/prism-infra/prism-sync/internal/remote"
	"github.com/prism-infra/prism-sync/internal/session"
	"github.com/prism-infra/prism-sync/internal/storage/postgres"
	"github.com/prism-infra/prism-sync/internal/whatif"
)

const serviceName = "prism-sync"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := bootstrap.NewLogger(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("api stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.SetGinMode(cfg.App.Environment)

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var pool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		pool, err = bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: cfg.Database.DSN})
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout,
		remote.WithPredictRate(rate.Limit(cfg.Remote.PredictRate), cfg.Remote.PredictBurst),
		remote.WithLogger(logger),
	)
	publisher := changefeed.NewPublisher(rdb, cfg.ChangeFeed.Channel)

	deps := listview.Deps{
		Store:     client,
		Predictor: client,
		Notifier:  publisher,
		Logger:    logger,
	}
	v1 := routes.V1Deps{
		Sessions:  session.NewRepository(rdb, cfg.Redis.SessionTTL),
		Auth:      client,
		ML:        client,
		Simulator: whatif.NewSimulator(client, cfg.Remote.WhatIfDebounce, logger),
		Logger:    logger,
	}

	if cfg.HistoryEnabled() {
		db, err := postgres.NewConnection(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		runs := history.NewRepository(db)
		if err := runs.EnsureSchema(ctx); err != nil {
			return err
		}
		deps.Recorder = runs
		v1.Runs = runs
	}

	registry := listview.NewRegistry(deps,
		listview.WithIdleTTL(cfg.ListView.IdleTTL),
		listview.WithMaxStates(cfg.ListView.MaxSessions),
	)
	defer registry.Close()
	v1.Registry = registry
	go registry.RunSweeper(ctx, time.Minute)

	sub, err := changefeed.NewSubscriber(rdb, cfg.ChangeFeed.Channel, logger).Subscribe(ctx)
	if err != nil {
		return err
	}
	go sub.Run(ctx, func(c changefeed.Change) {
		registry.Invalidate(ctx, c)
	})

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		DB:          pool,
		Redis:       rdb,
		Remote:      client,
		V1:          v1,
	})

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		return err
	}

	logger.Info("starting", zap.String("remote", cfg.Remote.BaseURL))
	// Closing the registry ends open event streams so Shutdown does not wait on them.
	return bootstrap.Serve(ctx, srv, ln, bootstrap.DefaultShutdownTimeout, logger, registry.Close)
}
