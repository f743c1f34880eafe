package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MiddlewareTimeout time.Duration `mapstructure:"middleware_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	CronSecret     string        `mapstructure:"cron_secret"`
	EncryptionKey  string        `mapstructure:"encryption_key"`
}

type LLMConfig struct {
	DefaultProvider      string          `mapstructure:"default_provider"`
	OpenAI               OpenAIConfig    `mapstructure:"openai"`
	Anthropic            AnthropicConfig `mapstructure:"anthropic"`
	Gemini               GeminiConfig    `mapstructure:"gemini"`
	Ollama               OllamaConfig    `mapstructure:"ollama"`
	SummaryMaxTokens     int             `mapstructure:"summary_max_tokens"`
	SummaryMessageWindow int             `mapstructure:"summary_message_window"`
	Timeout              time.Duration   `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Host         string `mapstructure:"host"`
	DefaultModel string `mapstructure:"default_model"`
}

type ChannelsConfig struct {
	Timeout  time.Duration  `mapstructure:"timeout"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Podium   PodiumConfig   `mapstructure:"podium"`
	Birdeye  BirdeyeConfig  `mapstructure:"birdeye"`
}

type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	BaseURL   string `mapstructure:"base_url"`
}

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

type WebhookConfig struct {
	Secret    string `mapstructure:"secret"`
	AppSecret string `mapstructure:"app_secret"`
}

// SigningSecret returns the webhook secret, falling back to the app secret
func (c WebhookConfig) SigningSecret() string {
	if c.Secret != "" {
		return c.Secret
	}
	return c.AppSecret
}

type PodiumConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type BirdeyeConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type AlertsConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	BatchSize      int           `mapstructure:"batch_size"`
	ClaimLease     time.Duration `mapstructure:"claim_lease"`
	SkipLowQuality bool          `mapstructure:"skip_low_quality"`
}

type WorkersConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	AlertInterval  time.Duration `mapstructure:"alert_interval"`
	IdleMinutes    int           `mapstructure:"idle_minutes"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	ReaperBatch    int           `mapstructure:"reaper_batch"`
	DigestInterval time.Duration `mapstructure:"digest_interval"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.middleware_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mattressai")
	v.SetDefault("database.database", "mattressai")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "5m")

	// Auth
	v.SetDefault("auth.access_token_ttl", "1h")

	// LLM
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-haiku-20240307")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")
	v.SetDefault("llm.ollama.host", "http://localhost:11434")
	v.SetDefault("llm.ollama.default_model", "llama3")
	v.SetDefault("llm.summary_max_tokens", 150)
	v.SetDefault("llm.summary_message_window", 20)
	v.SetDefault("llm.timeout", "10s")

	// Channels
	v.SetDefault("channels.timeout", "10s")
	v.SetDefault("channels.sendgrid.base_url", "https://api.sendgrid.com/v3")
	v.SetDefault("channels.sendgrid.from_email", "alerts@mattressai.app")
	v.SetDefault("channels.twilio.base_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("channels.podium.base_url", "https://api.podium.com/v4")
	v.SetDefault("channels.birdeye.base_url", "https://api.birdeye.com/v2")

	// Alerts
	v.SetDefault("alerts.max_attempts", 3)
	v.SetDefault("alerts.retry_base_delay", "1m")
	v.SetDefault("alerts.batch_size", 20)
	v.SetDefault("alerts.claim_lease", "10m")
	v.SetDefault("alerts.skip_low_quality", false)

	// Workers
	v.SetDefault("workers.enabled", true)
	v.SetDefault("workers.alert_interval", "5m")
	v.SetDefault("workers.idle_minutes", 15)
	v.SetDefault("workers.reaper_interval", "1m")
	v.SetDefault("workers.reaper_batch", 100)
	v.SetDefault("workers.digest_interval", "168h")
	v.SetDefault("workers.lock_ttl", "10m")

	// Security
	v.SetDefault("security.rate_limit.requests_per_minute", 120)
	v.SetDefault("security.rate_limit.burst", 20)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("env", "ENV")

	// Database
	v.BindEnv("database.host", "POSTGRES_HOST")
	v.BindEnv("database.password", "POSTGRES_PASSWORD")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.cron_secret", "CRON_SECRET")
	v.BindEnv("auth.encryption_key", "ENCRYPTION_KEY")

	// LLM API Keys
	v.BindEnv("llm.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("llm.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("llm.ollama.host", "OLLAMA_HOST")

	// Channels
	v.BindEnv("channels.sendgrid.api_key", "SENDGRID_API_KEY")
	v.BindEnv("channels.twilio.account_sid", "TWILIO_ACCOUNT_SID")
	v.BindEnv("channels.twilio.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("channels.twilio.from_number", "TWILIO_FROM_NUMBER")
	v.BindEnv("channels.webhook.secret", "WEBHOOK_SECRET")
	v.BindEnv("channels.webhook.app_secret", "SHOPIFY_API_SECRET")
}
