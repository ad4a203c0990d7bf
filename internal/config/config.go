package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"billflow/internal/logger"
)

type Config struct {
	// Database
	DatabaseURL   string
	MigrationsDir string

	// HTTP server
	ListenAddr     string
	AllowedOrigins string

	// Uploads
	UploadDir      string
	MaxUploadBytes int64

	// Extraction (OpenAI)
	OpenAIAPIKey string
	OpenAIModel  string

	// External accounting system
	SyncBaseURL string
	SyncAPIKey  string
	SyncTimeout time.Duration

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "20971520"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be an integer: %w", err)
	}
	syncTimeout, err := time.ParseDuration(getEnv("SYNC_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("SYNC_TIMEOUT must be a duration: %w", err)
	}

	// Unlike the other vars, an explicitly empty MIGRATIONS_DIR is
	// meaningful: it turns startup migrations off.
	migrationsDir := "migrations"
	if v, ok := os.LookupEnv("MIGRATIONS_DIR"); ok {
		migrationsDir = v
	}

	config := &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrationsDir:  migrationsDir,
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),
		UploadDir:      getEnv("UPLOAD_DIR", "data/uploads"),
		MaxUploadBytes: maxUpload,
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", ""),
		SyncBaseURL:    getEnv("SYNC_BASE_URL", ""),
		SyncAPIKey:     getEnv("SYNC_API_KEY", ""),
		SyncTimeout:    syncTimeout,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:  getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:      getEnv("LOG_OUTPUT", "stdout"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
