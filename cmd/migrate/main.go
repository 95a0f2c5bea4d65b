package main

import (
	"errors"
	"flag"
	"os"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-giving/internal/app"
	"github.com/noah-isme/backend-giving/internal/obs"
	"github.com/noah-isme/backend-giving/internal/repo"
)

func main() {
	steps := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	_ = godotenv.Load()
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "json"), envOrDefault("LOG_LEVEL", "info")).With().Str("component", "migrate").Logger()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := repo.NewMigrator(dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Error().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
		}
	}()

	if *steps > 0 {
		err = m.Steps(-*steps)
		if errors.Is(err, migrate.ErrNoChange) {
			err = nil
		}
	} else {
		err = app.RunMigrations(m)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read schema version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
