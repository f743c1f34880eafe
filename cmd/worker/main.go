package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/app"
	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/logger"
	"github.com/Rrens/mattressai-engine/internal/worker"
)

// One-shot job runner for external schedulers that invoke a binary instead of /cron.
func main() {
	job := flag.String("job", "alerts", "job to run: reap, alerts or digest")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	closer, err := logger.Init(cfg.Env, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(*job, cfg); err != nil {
		log.Error().Err(err).Str("job", *job).Msg("Job failed")
		closer.Close()
		os.Exit(1)
	}
}

func run(job string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	switch job {
	case "reap":
		var n int
		ran, err := engine.ReaperRunner().Do(ctx, func(ctx context.Context) error {
			var err error
			n, err = engine.Reaper.Reap(ctx)
			return err
		})
		if err != nil {
			return err
		}
		if !ran {
			log.Info().Msg("Reaper already running elsewhere, skipping")
			return nil
		}
		log.Info().Int("ended", n).Msg("Idle sessions reaped")
	case "alerts":
		stats, err := engine.AlertCycle.Cycle(ctx)
		if errors.Is(err, worker.ErrBusy) {
			log.Info().Msg("Alert cycle already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().
			Int("reaped", stats.Reaped).
			Int("processed", stats.Dispatch.Processed).
			Int("sent", stats.Dispatch.Sent).
			Int("failed", stats.Dispatch.Failed).
			Int("skipped", stats.Dispatch.Skipped).
			Int("dead_lettered", stats.DeadLettered).
			Msg("Alert cycle complete")
	case "digest":
		stats, err := engine.Digest.Digest(ctx)
		if errors.Is(err, worker.ErrBusy) {
			log.Info().Msg("Digest already running elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Int("processed", stats.Processed).Int("sent", stats.Sent).Int("failed", stats.Failed).Msg("Digest complete")
	default:
		return fmt.Errorf("unknown job %q", job)
	}
	return nil
}
