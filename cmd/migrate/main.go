// Package main provides the database migration CLI tool for Postgres
// deployments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/keymint/keymint/internal/store"
	"github.com/rs/zerolog"
)

func main() {
	var (
		dbURL = flag.String("db", "", "Database URL (or set DATABASE_URL env var)")
		list  = flag.Bool("list", false, "List all migrations")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	if *list {
		listMigrations(logger)
		return
	}

	url := *dbURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		logger.Fatal().Msg("database URL required: use -db flag or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg := store.DefaultPostgresConfig(url)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	st, err := store.NewPostgresStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.Close()

	logger.Info().Msg("running database migrations")
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("migrations complete")
}

func listMigrations(logger zerolog.Logger) {
	migrations, err := store.Migrations()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load migrations")
	}
	for _, m := range migrations {
		fmt.Printf("%03d %s\n", m.Version, m.Name)
	}
}
