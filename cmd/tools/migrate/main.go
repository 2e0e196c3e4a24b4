package main

import (
	"errors"
	"flag"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pesan-antar/internal/db"
	"github.com/noah-isme/pesan-antar/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL")).With().Str("component", "migrate").Logger()

	direction := flag.String("direction", "up", "up, down or version")
	steps := flag.Int("steps", 0, "number of migrations to roll back with -direction=down (0 = all)")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	m, err := db.NewMigrator(databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrations")
	}
	defer closeMigrator(m, logger)

	switch *direction {
	case "up":
		err = db.Up(m)
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
		if errors.Is(err, migrate.ErrNoChange) {
			err = nil
		}
	case "version":
	default:
		logger.Fatal().Str("direction", *direction).Msg("unknown direction")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Str("direction", *direction).Msg("migrations complete")
}

func closeMigrator(m *migrate.Migrate, logger zerolog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Error().Err(srcErr).Msg("close migration source")
	}
	if dbErr != nil {
		logger.Error().Err(dbErr).Msg("close migration database")
	}
}
