// Package main is the clustering worker entry point: it drives the
// INIT -> DB_READY -> MB_READY -> CONNECTED -> CONSUMING state machine of
// specification §4.F and runs until killed.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metabrainz/messybrainz-clusterer/internal/canonicalize"
	"github.com/metabrainz/messybrainz-clusterer/internal/clustering"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/broker"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/database/rdb"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/musicbrainzdb"
	"github.com/metabrainz/messybrainz-clusterer/pkg/config"
	"github.com/metabrainz/messybrainz-clusterer/pkg/shutdown"
	"github.com/pannpers/go-logging/logging"
)

func main() {
	if err := run(); err != nil {
		logger, _ := logging.New()
		logger.Error(context.Background(), "clustering worker failed", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	logger, err := logging.New()
	if err != nil {
		return err
	}
	logger.Info(ctx, "starting clustering worker")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The specification's CLI surface requires a distinct failure mode for
	// a missing broker host: log critical, sleep, exit non-zero, rather
	// than failing config validation outright.
	if !cfg.HasBrokerHost() {
		logger.Error(ctx, "missing RABBITMQ_HOST, exiting", errors.New("RABBITMQ_HOST is not configured"))
		time.Sleep(3 * time.Second)
		os.Exit(-1)
	}

	shutdown.Init(logger)

	// INIT -> DB_READY
	db, err := rdb.Connect(ctx, cfg.Database.URI, cfg.ErrorRetryDelay, logger)
	if err != nil {
		return err
	}
	shutdown.AddDatastorePhase(db)

	if err := rdb.RunMigrations(ctx, cfg.Database.URI, logger); err != nil {
		return err
	}

	// DB_READY -> MB_READY
	mbClient, err := connectMetadataClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	shutdown.AddExternalPhase(mbClient)

	// MB_READY -> CONNECTED
	conn := broker.NewConnection(cfg.Broker.AMQPURI(), cfg.ErrorRetryDelay, logger)
	topo := broker.Topology{
		IncomingExchange: cfg.Topology.IncomingExchange,
		IncomingQueue:    cfg.Topology.IncomingQueue,
		UniqueExchange:   cfg.Topology.UniqueExchange,
	}
	channel := broker.NewChannel(conn, topo, cfg.ErrorRetryDelay, logger)
	shutdown.AddFlushPhase(channel)
	shutdown.AddExternalPhase(conn)

	clusterStore := rdb.NewClusterStore()
	listenStore := rdb.NewListenStore()
	canon := canonicalize.New()
	clusterer := clustering.New(db.Pool, clusterStore, listenStore, canon, mbClient, logger)

	worker := broker.NewWorker(channel, clusterer, logger)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := shutdown.Shutdown(shutdownCtx); err != nil {
			logger.Error(context.Background(), "error during shutdown", err)
		}
	}()

	logger.Info(ctx, "clustering worker consuming")

	// CONNECTED -> CONSUMING
	if err := worker.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info(ctx, "received shutdown signal, stopping worker gracefully",
				slog.String("cause", context.Cause(ctx).Error()))
			return nil
		}
		return err
	}

	return nil
}

func connectMetadataClient(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*musicbrainzdb.Client, error) {
	for {
		client, err := musicbrainzdb.New(ctx, cfg.MusicBrainzDB.URI, logger)
		if err == nil {
			return client, nil
		}

		logger.Error(ctx, "cannot connect to musicbrainz replica, retrying", err,
			slog.Duration("retry_delay", cfg.ErrorRetryDelay))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.ErrorRetryDelay):
		}
	}
}
