package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/logger"
	"github.com/Rrens/mattressai-engine/internal/repository/postgres"
)

func main() {
	source := flag.String("source", "file://migrations", "migration source URL")
	steps := flag.Int("steps", 1, "number of migrations to roll back with 'down'")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := logger.Init(cfg.Env, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	direction := flag.Arg(0)
	if direction == "" {
		direction = "up"
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("direction", direction).
		Msg("Running migrations")

	switch direction {
	case "up":
		err = postgres.RunMigrations(cfg.Database.DSN(), *source)
	case "down":
		err = postgres.RollbackMigrations(cfg.Database.DSN(), *source, *steps)
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [-source url] [-steps n] up|down\n")
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}
