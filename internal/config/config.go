package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"macrobench/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
	LogLevel string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. URL may be empty, in
// which case runs are kept in memory only.
type DatabaseConfig struct {
	URL string
}

// LLMConfig holds provider credentials and invocation limits shared by every
// backend.
type LLMConfig struct {
	// InvokeTimeout bounds a single model call so one stuck model cannot
	// stall a tick barrier indefinitely.
	InvokeTimeout     time.Duration
	RequestsPerSecond float64
	Burst             int
	Credentials       map[string]string
}

// Load reads configuration from the environment (and .env when present) and
// validates it.
func Load() (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		LLM: LLMConfig{
			InvokeTimeout:     getEnvDurationOrDefault("LLM_INVOKE_TIMEOUT", 120*time.Second),
			RequestsPerSecond: getEnvFloatOrDefault("LLM_REQUESTS_PER_SECOND", 2),
			Burst:             getEnvIntOrDefault("LLM_BURST", 4),
			Credentials:       loadCredentials(),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if cfg.LLM.InvokeTimeout <= 0 {
		return nil, errors.ConfigInvalid("LLM_INVOKE_TIMEOUT must be positive")
	}
	if cfg.LLM.RequestsPerSecond <= 0 {
		return nil, errors.ConfigInvalid("LLM_REQUESTS_PER_SECOND must be positive")
	}
	return cfg, nil
}

// loadCredentials maps provider prefixes to their API keys. Missing keys are
// omitted; resolution fails later only for providers actually used.
func loadCredentials() map[string]string {
	creds := make(map[string]string)
	for provider, envKey := range map[string]string{
		"openai":     "OPENAI_API_KEY",
		"anthropic":  "ANTHROPIC_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	} {
		if v := os.Getenv(envKey); v != "" {
			creds[provider] = v
		}
	}
	return creds
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
