// Package app wires configuration, storage, providers and services into a runnable engine.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/api"
	"github.com/Rrens/mattressai-engine/internal/api/handler"
	"github.com/Rrens/mattressai-engine/internal/channel"
	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/llm"
	"github.com/Rrens/mattressai-engine/internal/llm/anthropic"
	"github.com/Rrens/mattressai-engine/internal/llm/gemini"
	"github.com/Rrens/mattressai-engine/internal/llm/ollama"
	"github.com/Rrens/mattressai-engine/internal/llm/openai"
	"github.com/Rrens/mattressai-engine/internal/metrics"
	"github.com/Rrens/mattressai-engine/internal/repository/postgres"
	"github.com/Rrens/mattressai-engine/internal/repository/redis"
	"github.com/Rrens/mattressai-engine/internal/security"
	"github.com/Rrens/mattressai-engine/internal/service"
	"github.com/Rrens/mattressai-engine/internal/worker"
)

// App holds the connected engine
type App struct {
	Config   *config.Config
	DB       *postgres.DB
	Redis    *redis.Client
	Locker   *redis.Locker
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	LLM      *llm.Router

	Sessions    *service.SessionService
	Events      *service.EventService
	Alerts      *service.AlertService
	Dispatcher  *service.Dispatcher
	Experiments *service.ExperimentService
	Digests     *service.DigestService

	Reaper       *worker.Reaper
	AlertCycle   *worker.LockedCycle
	DigestWorker *worker.DigestWorker
	Digest       *worker.LockedDigest
}

// New connects to Postgres and Redis and builds every service
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var box postgres.SecretBox
	if cfg.Auth.EncryptionKey != "" {
		enc, err := security.NewEncryptorFromSecret(cfg.Auth.EncryptionKey)
		if err != nil {
			db.Close()
			redisClient.Close()
			return nil, fmt.Errorf("failed to init encryptor: %w", err)
		}
		box = enc
	} else {
		log.Warn().Msg("ENCRYPTION_KEY not set, channel credentials are stored in plaintext")
	}

	sessionRepo := postgres.NewSessionRepository(db.Pool)
	eventRepo := postgres.NewEventRepository(db.Pool)
	leadRepo := postgres.NewLeadRepository(db.Pool)
	messageRepo := postgres.NewMessageRepository(db.Pool)
	alertRepo := postgres.NewAlertRepository(db.Pool)
	settingsRepo := postgres.NewAlertSettingsRepository(db.Pool, box)
	experimentRepo := postgres.NewExperimentRepository(db.Pool)
	tenantRepo := postgres.NewTenantRepository(db.Pool)

	settingsCache := redis.NewSettingsCache(redisClient, cfg.Redis.CacheTTL)
	llmRouter := NewLLMRouter(cfg.LLM)

	channels := channel.NewDefaultRegistry(cfg.Channels)

	summaries := service.NewSummaryService(llmRouter, messageRepo, cfg.LLM)
	experiments := service.NewExperimentService(experimentRepo, sessionRepo, leadRepo, eventRepo)
	alerts := service.NewAlertService(settingsRepo, settingsCache, alertRepo, tenantRepo, leadRepo, cfg.Alerts, m)
	dispatcher := service.NewDispatcher(alertRepo, sessionRepo, leadRepo, eventRepo, alerts, channels, cfg.Alerts, m)
	sessions := service.NewSessionService(sessionRepo, eventRepo, experiments, summaries, alerts, m, cfg.Workers.ReaperBatch)
	events := service.NewEventService(eventRepo, sessionRepo)
	digests := service.NewDigestService(
		settingsRepo, sessionRepo, leadRepo, alertRepo,
		channel.NewEmailSender(cfg.Channels.SendGrid),
		channel.NewSlackSender(),
	)

	reaper := worker.NewReaper(sessions, cfg.Workers.IdleMinutes)
	locker := redis.NewLocker(redisClient)
	digestWorker := worker.NewDigestWorker(digests)

	return &App{
		Config:       cfg,
		DB:           db,
		Redis:        redisClient,
		Locker:       locker,
		Registry:     reg,
		Metrics:      m,
		LLM:          llmRouter,
		Sessions:     sessions,
		Events:       events,
		Alerts:       alerts,
		Dispatcher:   dispatcher,
		Experiments:  experiments,
		Digests:      digests,
		Reaper:       reaper,
		AlertCycle:   worker.NewLockedCycle(worker.NewAlertWorker(reaper, dispatcher), locker, cfg.Workers.LockTTL, m),
		DigestWorker: digestWorker,
		Digest:       worker.NewLockedDigest(digestWorker, locker, cfg.Workers.LockTTL, m),
	}, nil
}

// NewLLMRouter registers every summary provider. Unconfigured providers stay listed.
func NewLLMRouter(cfg config.LLMConfig) *llm.Router {
	router := llm.NewRouter(cfg.DefaultProvider)
	router.RegisterProvider(openai.NewProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL))
	router.RegisterProvider(anthropic.NewProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model, cfg.Anthropic.BaseURL))
	router.RegisterProvider(gemini.NewProvider(cfg.Gemini))
	router.RegisterProvider(ollama.NewProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel))

	log.Info().Strs("providers", router.ListProviders()).Str("default", cfg.DefaultProvider).Msg("LLM providers registered")
	return router
}

// Handler builds the HTTP router
func (a *App) Handler() http.Handler {
	rl := a.Config.Security.RateLimit
	services := api.Services{
		Sessions:    a.Sessions,
		Events:      a.Events,
		Alerts:      a.Alerts,
		Tester:      a.Dispatcher,
		Experiments: a.Experiments,
		AlertCycle:  a.AlertCycle,
		Digest:      a.Digest,
		LLM:         a.LLM,
		JWT:         security.NewJWTManager(a.Config.Auth.JWTSecret, a.Config.Auth.AccessTokenTTL),
		Metrics:     a.Metrics,
		Gatherer:    a.Registry,
		Ready: map[string]handler.Pinger{
			"database": a.DB,
			"redis":    a.Redis,
		},
	}
	if rl.RequestsPerMinute > 0 {
		services.Limiter = redis.NewRateLimiter(a.Redis, rl.RequestsPerMinute, rl.Burst)
	}
	return api.NewRouter(a.Config, services)
}

// Runners returns the periodic background jobs. The alert runner skips the reaper,
// which runs on its own interval. Each shares its lock with the matching /cron job.
func (a *App) Runners() []*worker.Runner {
	w := a.Config.Workers
	return []*worker.Runner{
		a.ReaperRunner(),
		worker.NewRunner(worker.NewAlertWorker(nil, a.Dispatcher), w.AlertInterval, a.Locker, w.LockTTL, a.Metrics),
		worker.NewRunner(a.DigestWorker, w.DigestInterval, a.Locker, w.LockTTL, a.Metrics),
	}
}

// ReaperRunner returns the locked idle-session reaper
func (a *App) ReaperRunner() *worker.Runner {
	w := a.Config.Workers
	return worker.NewRunner(a.Reaper, w.ReaperInterval, a.Locker, w.LockTTL, a.Metrics)
}

// Close releases the connections
func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis")
	}
	a.DB.Close()
}
