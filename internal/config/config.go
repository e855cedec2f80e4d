package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/imgnamer/internal/llm"
	"github.com/dgallion1/imgnamer/internal/window"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// AI defaults merged into requests that omit them
	AI llm.Settings

	// Context windows and prompt budget
	Windows        window.Options
	MaxPromptChars int

	// Preview job pool
	WorkerCount  int
	MaxQueueSize int
	JobTTL       time.Duration

	// Request limits
	MaxUploadBytes int64

	// Log file (rotated); stdout only when empty
	LogFile string

	// Presets: a YAML file, or a remote key-value store when PresetsURL is set
	PresetsFile   string
	PresetsURL    string
	PresetsAPIKey string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	ai := llm.DefaultSettings()
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("IMGNAMER_API_KEY"),

		AI: llm.Settings{
			BaseURL:    envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			Model:      envOr("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:    envFloat("AI_TIMEOUT", ai.Timeout),
			MaxRetries: envInt("AI_MAX_RETRIES", ai.MaxRetries),
			RateLimit:  envFloat("AI_RATE_LIMIT", ai.RateLimit),
			Vision:     envBool("AI_VISION", false),
			BatchSize:  envInt("AI_BATCH_SIZE", ai.BatchSize),
		},

		Windows: window.Options{
			AboveBudget:   envInt("ABOVE_BUDGET", 600),
			BelowBudget:   envInt("BELOW_BUDGET", 600),
			BetweenBudget: envInt("BETWEEN_BUDGET", 600),
		},
		MaxPromptChars: envInt("MAX_PROMPT_CHARS", 4000),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 50),
		JobTTL:       envDuration("JOB_TTL", 1*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10<<20),

		LogFile: os.Getenv("LOG_FILE"),

		PresetsFile:   envOr("PRESETS_FILE", "presets.yaml"),
		PresetsURL:    os.Getenv("PRESETS_URL"),
		PresetsAPIKey: os.Getenv("PRESETS_API_KEY"),
	}

	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = ai.Timeout
	}
	if cfg.AI.MaxRetries < 0 {
		cfg.AI.MaxRetries = ai.MaxRetries
	}
	if cfg.AI.RateLimit < 0 {
		cfg.AI.RateLimit = 0
	}
	if cfg.AI.BatchSize <= 0 {
		cfg.AI.BatchSize = ai.BatchSize
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 4000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	return cfg
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL is required")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL is required")
	}
	if c.PresetsURL == "" && c.PresetsFile == "" {
		return fmt.Errorf("PRESETS_FILE or PRESETS_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
