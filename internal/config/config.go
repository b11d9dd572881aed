package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	CORS       CORSConfig
	Registry   RegistryConfig
	Import     ImportConfig
	Log        LogConfig
	Checkpoint CheckpointConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// RegistryConfig holds the Matrikkel registry endpoint configuration.
type RegistryConfig struct {
	URL     string
	Timeout time.Duration
	Debug   bool
}

// ImportConfig holds the tuning knobs of the import pipeline.
type ImportConfig struct {
	PageSize          int
	FetchBatchSize    int
	RelationChunkSize int
	FlushThreshold    int
	Retries           int
	RetryBackoff      time.Duration
	Municipalities    []string
}

// LogConfig holds optional log file rotation settings.
// An empty File disables file output.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// CheckpointConfig holds the cursor checkpoint store location.
// An empty Dir disables checkpointing.
type CheckpointConfig struct {
	Dir string
}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "matrikkel")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("REGISTRY_URL", "http://localhost:8090/matrikkelapi/wsapi/v1")
	v.SetDefault("REGISTRY_TIMEOUT", "60s")
	v.SetDefault("REGISTRY_DEBUG", false)
	v.SetDefault("IMPORT_PAGE_SIZE", 1000)
	v.SetDefault("IMPORT_FETCH_BATCH_SIZE", 1000)
	v.SetDefault("IMPORT_RELATION_CHUNK_SIZE", 500)
	v.SetDefault("IMPORT_FLUSH_THRESHOLD", 100)
	v.SetDefault("IMPORT_RETRIES", 2)
	v.SetDefault("IMPORT_RETRY_BACKOFF", "1s")
	v.SetDefault("IMPORT_MUNICIPALITIES", "")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("CHECKPOINT_DIR", "")

	// Bind environment variables
	v.AutomaticEnv()

	// Build configuration
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseList(v.GetString("CORS_ORIGINS")),
		},
		Registry: RegistryConfig{
			URL:     strings.TrimRight(v.GetString("REGISTRY_URL"), "/"),
			Timeout: v.GetDuration("REGISTRY_TIMEOUT"),
			Debug:   v.GetBool("REGISTRY_DEBUG"),
		},
		Import: ImportConfig{
			PageSize:          v.GetInt("IMPORT_PAGE_SIZE"),
			FetchBatchSize:    v.GetInt("IMPORT_FETCH_BATCH_SIZE"),
			RelationChunkSize: v.GetInt("IMPORT_RELATION_CHUNK_SIZE"),
			FlushThreshold:    v.GetInt("IMPORT_FLUSH_THRESHOLD"),
			Retries:           v.GetInt("IMPORT_RETRIES"),
			RetryBackoff:      v.GetDuration("IMPORT_RETRY_BACKOFF"),
			Municipalities:    parseList(v.GetString("IMPORT_MUNICIPALITIES")),
		},
		Log: LogConfig{
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Checkpoint: CheckpointConfig{
			Dir: v.GetString("CHECKPOINT_DIR"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	// Validate registry config
	if c.Registry.URL == "" {
		return fmt.Errorf("REGISTRY_URL is required")
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("REGISTRY_TIMEOUT must be positive")
	}

	// Validate import config
	if c.Import.PageSize < 1 {
		return fmt.Errorf("IMPORT_PAGE_SIZE must be at least 1")
	}
	if c.Import.FetchBatchSize < 1 {
		return fmt.Errorf("IMPORT_FETCH_BATCH_SIZE must be at least 1")
	}
	if c.Import.RelationChunkSize < 1 {
		return fmt.Errorf("IMPORT_RELATION_CHUNK_SIZE must be at least 1")
	}
	if c.Import.FlushThreshold < 1 {
		return fmt.Errorf("IMPORT_FLUSH_THRESHOLD must be at least 1")
	}
	if c.Import.Retries < 0 {
		return fmt.Errorf("IMPORT_RETRIES must be non-negative")
	}
	if c.Import.RetryBackoff < 0 {
		return fmt.Errorf("IMPORT_RETRY_BACKOFF must be non-negative")
	}
	for _, m := range c.Import.Municipalities {
		if !isMunicipalityNumber(m) {
			return fmt.Errorf("IMPORT_MUNICIPALITIES contains invalid municipality number %q", m)
		}
	}

	return nil
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
		sslMode,
	)
}

// parseList splits a comma-separated string into a slice of trimmed, non-empty values.
func parseList(values string) []string {
	if values == "" {
		return []string{}
	}

	parts := strings.Split(values, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// isMunicipalityNumber reports whether s is a four digit municipality number.
func isMunicipalityNumber(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
