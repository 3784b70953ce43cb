// Package main is the batch rebuilder entry point: it runs the two-phase
// rebuild of specification §4.E for all three entity kinds and exits.
package main

import (
	"context"
	"os"

	"github.com/metabrainz/messybrainz-clusterer/internal/clustering"
	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/metabrainz/messybrainz-clusterer/internal/infrastructure/database/rdb"
	"github.com/metabrainz/messybrainz-clusterer/pkg/config"
	"github.com/pannpers/go-logging/logging"
)

func main() {
	if err := run(); err != nil {
		logger, _ := logging.New()
		logger.Error(context.Background(), "rebuild failed", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := logging.New()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := rdb.New(ctx, cfg.Database.URI, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	store := rdb.NewClusterStore()
	rebuilder := clustering.NewRebuilder(db.Pool, store, logger)

	for _, kind := range []entity.Kind{entity.Recording, entity.ArtistCredit, entity.Release} {
		if _, err := rebuilder.Rebuild(ctx, kind); err != nil {
			return err
		}
	}

	return nil
}
