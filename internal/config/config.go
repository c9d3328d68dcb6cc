package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Poster    PosterConfig
	LLM       LLMConfig
	TMDb      TMDbConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ImportConfig holds CSV import configuration
type ImportConfig struct {
	DefaultCSVPath string
	MaxDirectors   int // directors recorded per movie from the CSV
}

// PosterConfig holds poster analysis configuration.
// Thresholds are hand-tuned; treat them as configuration, not ground truth.
type PosterConfig struct {
	DownloadTimeout time.Duration
	SampleSize      int // posters are resized to SampleSize x SampleSize before analysis
	DominantColors  int
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// TMDbConfig holds metadata enrichment configuration
type TMDbConfig struct {
	APIKey  string
	Timeout time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("CINESCOPE_PORT", 8080),
			Host:         getEnv("CINESCOPE_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvDuration("CINESCOPE_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("CINESCOPE_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("CINESCOPE_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Path:            getEnv("CINESCOPE_DB_PATH", "data/cinescope.db"),
			MaxOpenConns:    getEnvInt("CINESCOPE_MAX_OPEN_CONNS", 1),
			MaxIdleConns:    getEnvInt("CINESCOPE_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: getEnvDuration("CINESCOPE_CONN_MAX_LIFETIME", 1*time.Hour),
		},
		Import: ImportConfig{
			DefaultCSVPath: getEnv("CINESCOPE_CSV_PATH", "imdb_ratings.csv"),
			MaxDirectors:   getEnvInt("CINESCOPE_MAX_DIRECTORS", 3),
		},
		Poster: PosterConfig{
			DownloadTimeout: getEnvDuration("CINESCOPE_POSTER_TIMEOUT", 15*time.Second),
			SampleSize:      getEnvInt("CINESCOPE_POSTER_SAMPLE_SIZE", 150),
			DominantColors:  getEnvInt("CINESCOPE_POSTER_COLORS", 5),
		},
		LLM: LLMConfig{
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			Model:     getEnv("CINESCOPE_LLM_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens: getEnvInt("CINESCOPE_LLM_MAX_TOKENS", 2000),
			Timeout:   getEnvDuration("CINESCOPE_LLM_TIMEOUT", 60*time.Second),
		},
		TMDb: TMDbConfig{
			APIKey:  getEnv("TMDB_API_KEY", ""),
			Timeout: getEnvDuration("CINESCOPE_TMDB_TIMEOUT", 15*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("CINESCOPE_REQUESTS_PER_MINUTE", 100),
			BurstSize:         getEnvInt("CINESCOPE_BURST_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("CINESCOPE_LOG_LEVEL", "info"),
			Format: getEnv("CINESCOPE_LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1024 and 65535, got %d", c.Server.Port)
	}
	if c.Poster.SampleSize < 16 {
		return fmt.Errorf("poster sample size must be at least 16, got %d", c.Poster.SampleSize)
	}
	if c.Poster.DominantColors < 1 {
		return fmt.Errorf("dominant color count must be positive, got %d", c.Poster.DominantColors)
	}
	if c.Import.MaxDirectors < 1 {
		return fmt.Errorf("max directors must be positive, got %d", c.Import.MaxDirectors)
	}
	return nil
}

// resolvePaths resolves file paths to absolute paths
func (c *Config) resolvePaths() error {
	var err error

	c.Database.Path, err = filepath.Abs(c.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}

	c.Import.DefaultCSVPath, err = filepath.Abs(c.Import.DefaultCSVPath)
	if err != nil {
		return fmt.Errorf("failed to resolve CSV path: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
