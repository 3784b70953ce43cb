package rdb

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pannpers/go-logging/logging"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/versions/*.sql
var migrationFS embed.FS

// RunMigrations applies pending database migrations using goose v3's
// Provider API against dsn. It acquires a PostgreSQL advisory lock to
// prevent concurrent execution across worker replicas and applies all
// embedded SQL migrations, which create the six cluster/redirect tables
// and the listen archive.
func RunMigrations(ctx context.Context, dsn string, logger *logging.Logger) error {
	logger.Info(ctx, "starting database migrations")

	db, err := NewStdlibDB(dsn)
	if err != nil {
		return fmt.Errorf("create migration database connection: %w", err)
	}
	defer db.Close()

	migrations, err := fs.Sub(migrationFS, "migrations/versions")
	if err != nil {
		return fmt.Errorf("create migration sub-filesystem: %w", err)
	}

	sessionLocker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("create postgres session locker: %w", err)
	}

	provider, err := goose.NewProvider(
		goose.DialectPostgres,
		db,
		migrations,
		goose.WithSessionLocker(sessionLocker),
	)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if len(results) == 0 {
		logger.Info(ctx, "no pending migrations to apply")
		return nil
	}

	for _, r := range results {
		logger.Info(ctx, "applied migration",
			slog.String("file", r.Source.Path),
			slog.String("duration", r.Duration.String()),
		)
	}

	logger.Info(ctx, "database migrations completed", slog.Int("applied", len(results)))

	return nil
}
