package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all environment backed configuration for the chat service.
type Config struct {
	// HTTP Server
	HTTPPort    int           `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int           `env:"METRICS_PORT" envDefault:"9091"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// PostgreSQL
	DatabaseURL          string `env:"DATABASE_URL,notEmpty"`
	DBPostgresqlRead1DSN string `env:"DB_POSTGRESQL_READ1_DSN"`

	// DeepSeek backend (OpenAI compatible)
	DeepSeekBaseURL    string        `env:"DEEPSEEK_BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	DeepSeekAPIKey     string        `env:"DEEPSEEK_API_KEY,notEmpty"`
	DefaultModel       string        `env:"DEFAULT_MODEL" envDefault:"deepseek-chat"`
	SummaryModel       string        `env:"SUMMARY_MODEL" envDefault:"deepseek-chat"`
	InferenceTimeout   time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"120s"`
	DefaultTemperature float32       `env:"DEFAULT_TEMPERATURE" envDefault:"0.7"`
	DefaultMaxTokens   int           `env:"DEFAULT_MAX_TOKENS" envDefault:"2000"`

	// Model presets
	ModelPresetsEnabled bool          `env:"MODEL_PRESETS_ENABLED" envDefault:"false"`
	ModelPresetsFile    string        `env:"MODEL_PRESETS_FILE"`
	ModelPresets        *ModelPresets `env:"-"`

	// Context policy
	HistoryStrategy    string `env:"HISTORY_STRATEGY" envDefault:"window"`
	SummaryRounds      int    `env:"CONVERSATION_SUMMARY_ROUNDS" envDefault:"10"`
	MaxContextMessages int    `env:"MAX_CONTEXT_MESSAGES" envDefault:"20"`

	// Conversation retention
	MaxConversationsPerUser int    `env:"MAX_CONVERSATIONS_PER_USER" envDefault:"10"`
	RetentionSweepSchedule  string `env:"RETENTION_SWEEP_SCHEDULE" envDefault:"30 3 * * *"`

	// Save queue
	SaveQueueCapacity   int           `env:"SAVE_QUEUE_CAPACITY" envDefault:"256"`
	SaveQueueMaxRetries int           `env:"SAVE_QUEUE_MAX_RETRIES" envDefault:"3"`
	SaveQueueBaseDelay  time.Duration `env:"SAVE_QUEUE_BASE_DELAY" envDefault:"1s"`

	// Rate limiting, per resolved user (0 disables)
	RateLimitPerMinute float64 `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`

	// Observability / Logging
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string `env:"SERVICE_NAME" envDefault:"superrag-chat"`
	ServiceNamespace string `env:"SERVICE_NAMESPACE" envDefault:"superrag"`
	Environment      string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`

	// Features
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"true"`
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if _, err := url.ParseRequestURI(cfg.DeepSeekBaseURL); err != nil {
		return nil, fmt.Errorf("invalid DEEPSEEK_BASE_URL: %w", err)
	}

	switch strings.ToLower(cfg.HistoryStrategy) {
	case "window", "managed":
		cfg.HistoryStrategy = strings.ToLower(cfg.HistoryStrategy)
	default:
		return nil, fmt.Errorf("invalid HISTORY_STRATEGY %q: must be window or managed", cfg.HistoryStrategy)
	}

	if cfg.SummaryRounds <= 0 {
		return nil, fmt.Errorf("CONVERSATION_SUMMARY_ROUNDS must be positive, got %d", cfg.SummaryRounds)
	}
	if cfg.MaxContextMessages <= 0 {
		return nil, fmt.Errorf("MAX_CONTEXT_MESSAGES must be positive, got %d", cfg.MaxContextMessages)
	}
	if cfg.MaxConversationsPerUser <= 0 {
		return nil, fmt.Errorf("MAX_CONVERSATIONS_PER_USER must be positive, got %d", cfg.MaxConversationsPerUser)
	}

	if cfg.ModelPresetsEnabled {
		presetFile := strings.TrimSpace(cfg.ModelPresetsFile)
		if presetFile == "" {
			presetFile = DefaultModelPresetsFile
		}
		presets, err := LoadModelPresets(presetFile)
		if err != nil {
			return nil, fmt.Errorf("load model presets: %w", err)
		}
		cfg.ModelPresets = presets
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
