// Package config provides configuration management for the address registry service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names reported by the store selection.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Signature SignatureConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	PublicDir       string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration.
// URL selects the networked Postgres store when present; otherwise the
// embedded SQLite file at SQLitePath is used.
type DatabaseConfig struct {
	URL            string
	SQLitePath     string
	MaxConnections int
}

// Backend returns the store backend selected by this configuration.
func (c DatabaseConfig) Backend() string {
	if c.URL != "" {
		return BackendPostgres
	}
	return BackendSQLite
}

// SignatureConfig controls signed submissions
type SignatureConfig struct {
	Required bool
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int // 0 disables limiting
	Burst             int
	RedisURL          string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			Host:            getEnv("HOST", "0.0.0.0"),
			PublicDir:       getEnv("PUBLIC_DIR", "public"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:            strings.TrimSpace(getEnv("DATABASE_URL", "")),
			SQLitePath:     getEnv("SQLITE_PATH", "./addresses.db"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
		},
		Signature: SignatureConfig{
			Required: getEnvAsBool("REQUIRE_SIGNATURE", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
			RedisURL:          getEnv("REDIS_URL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid PORT %q", c.Server.Port)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be positive, got %d", c.Database.MaxConnections)
	}
	if c.Database.URL == "" && c.Database.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH must be set when DATABASE_URL is empty")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS cannot be negative, got %d", c.RateLimit.RequestsPerSecond)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
