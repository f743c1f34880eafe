package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rrens/mattressai-engine/internal/api/handler"
	customMiddleware "github.com/Rrens/mattressai-engine/internal/api/middleware"
	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/llm"
	"github.com/Rrens/mattressai-engine/internal/metrics"
	"github.com/Rrens/mattressai-engine/internal/security"
)

// Services are the dependencies the HTTP surface routes to
type Services struct {
	Sessions    handler.SessionAPI
	Events      handler.EventAPI
	Alerts      handler.AlertAPI
	Tester      handler.TestAlertSender
	Experiments handler.ExperimentAPI
	AlertCycle  handler.AlertCycler
	Digest      handler.DigestSender
	LLM         *llm.Router
	JWT         *security.JWTManager
	// Limiter may be nil to disable widget rate limiting
	Limiter  customMiddleware.Limiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Ready    map[string]handler.Pinger
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.RequestLogger(svc.Metrics))
	r.Use(middleware.Recoverer)
	if cfg.Server.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", customMiddleware.TenantHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	widgetHandler := handler.NewWidgetHandler(svc.Sessions, svc.Events)
	alertHandler := handler.NewAlertHandler(svc.Alerts, svc.Tester)
	experimentHandler := handler.NewExperimentHandler(svc.Experiments)
	intentHandler := handler.NewIntentHandler(svc.Sessions)
	cronHandler := handler.NewCronHandler(svc.AlertCycle, svc.Digest)

	authMiddleware := customMiddleware.NewAuthMiddleware(svc.JWT)

	if cfg.Metrics.Enabled && svc.Gatherer != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(svc.Ready))

		// Storefront widget
		r.Route("/widget", func(r chi.Router) {
			if svc.Limiter != nil {
				r.Use(customMiddleware.NewRateLimitMiddleware(svc.Limiter).Limit)
			}
			r.Post("/sessions", widgetHandler.StartSession)
			r.Post("/sessions/{sessionID}/activity", widgetHandler.Activity)
			r.Post("/sessions/{sessionID}/end", widgetHandler.EndSession)
			r.Post("/events", widgetHandler.TrackEvent)
		})

		// Merchant admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/llm-providers", handler.ListLLMProviders(svc.LLM))
			r.Post("/intent-score", intentHandler.Score)

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", alertHandler.List)
				r.Get("/settings", alertHandler.GetSettings)
				r.Put("/settings", alertHandler.UpdateSettings)
				r.Post("/test", alertHandler.SendTest)
			})

			r.Route("/experiments", func(r chi.Router) {
				r.Get("/", experimentHandler.List)
				r.Post("/", experimentHandler.Create)
				r.Post("/significance", experimentHandler.Significance)

				r.Route("/{experimentID}", func(r chi.Router) {
					r.Get("/", experimentHandler.Get)
					r.Patch("/status", experimentHandler.UpdateStatus)
					r.Get("/metrics", experimentHandler.Metrics)
				})
			})
		})

		// External scheduler
		r.Route("/cron", func(r chi.Router) {
			r.Use(customMiddleware.CronAuth(cfg.Auth.CronSecret))
			r.Post("/alerts", cronHandler.Alerts)
			r.Post("/digest", cronHandler.Digest)
		})
	})

	return r
}
