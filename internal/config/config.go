package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// RunwayML
	RunwayAPIKey     string
	RunwayAPIBaseURL string

	// Gemini (analysis, plan chat, Veo generation)
	GeminiAPIKey  string
	AnalysisModel string
	ChatModel     string

	// Cloudflare R2
	R2Endpoint  string
	R2AccessKey string
	R2SecretKey string
	R2Bucket    string
	R2UseSSL    bool

	// Webhook
	WebhookCallbackURL string
	WebhookToken       string

	// Database
	DatabaseURL string

	// Generation supervision
	FallbackOrder       []string
	PollInitialInterval time.Duration
	PollMaxInterval     time.Duration
	PollMultiplier      float64
	MaxTransientRetries int
	MaxJobStall         time.Duration

	// Server
	Port        string
	Environment string
	BaseURL     string
	JWTSecret   string
}

func Load() (*Config, error) {
	cfg := &Config{
		RunwayAPIKey:     getEnv("RUNWAY_API_KEY", ""),
		RunwayAPIBaseURL: getEnv("RUNWAY_API_BASE_URL", "https://api.runwayml.com/v1"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		AnalysisModel: getEnv("ANALYSIS_MODEL", "gemini-2.0-flash"),
		ChatModel:     getEnv("CHAT_MODEL", "gemini-2.0-flash"),

		R2Endpoint:  getEnv("R2_ENDPOINT", ""),
		R2AccessKey: getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:    getEnv("R2_BUCKET_NAME", "reelforge-assets"),
		R2UseSSL:    getEnvBool("R2_USE_SSL", true),

		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookToken:       getEnv("WEBHOOK_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		FallbackOrder:       []string{"runway-gen4", "runway-gen3", "veo-3", "veo-2"},
		PollInitialInterval: getEnvDuration("POLL_INITIAL_INTERVAL", 2*time.Second),
		PollMaxInterval:     getEnvDuration("POLL_MAX_INTERVAL", 30*time.Second),
		PollMultiplier:      2.0,
		MaxTransientRetries: getEnvInt("MAX_TRANSIENT_RETRIES", 3),
		MaxJobStall:         getEnvDuration("MAX_JOB_STALL", 15*time.Minute),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.R2Endpoint == "" {
		return fmt.Errorf("R2_ENDPOINT is required")
	}
	if c.R2AccessKey == "" || c.R2SecretKey == "" {
		return fmt.Errorf("R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY are required")
	}
	if c.RunwayAPIKey == "" && c.GeminiAPIKey == "" {
		return fmt.Errorf("at least one of RUNWAY_API_KEY or GEMINI_API_KEY is required")
	}
	if c.PollInitialInterval <= 0 || c.PollMaxInterval < c.PollInitialInterval {
		return fmt.Errorf("poll intervals are inconsistent")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
