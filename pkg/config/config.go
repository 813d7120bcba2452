// Package config loads ShipView configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shipview/shipview/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig holds PostgreSQL and Redis configuration
type StorageConfig struct {
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuthConfig holds the authentication and authorization configuration.
//
// Issuer, Audience and Algorithm describe the single accepted credential
// issuer; KeyServiceURL is where verification keys are fetched by key id.
type AuthConfig struct {
	Issuer           string
	Audience         string
	Algorithm        string
	KeyServiceURL    string
	ProfileURL       string
	ConnectionPrefix string

	DirectoryURL   string
	DirectoryToken string

	CapabilitySecret string
	AdminGroupID     int64

	// LoginURL is where browser requests without a credential are redirected
	LoginURL string
	// CookieName is the cookie checked when no Authorization header is present
	CookieName string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SHIPVIEW_HOST", "0.0.0.0"),
		Port:            getEnv("SHIPVIEW_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SHIPVIEW_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SHIPVIEW_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SHIPVIEW_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHIPVIEW_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SHIPVIEW_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:         getEnv("SHIPVIEW_POSTGRES_URL", ""),
		PostgresReplicaURLs: getEnv("SHIPVIEW_POSTGRES_REPLICA_URLS", ""),
		PostgresMaxConns:    getEnvInt("SHIPVIEW_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns:    getEnvInt("SHIPVIEW_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:     getEnvDuration("SHIPVIEW_POSTGRES_TIMEOUT", 10*time.Second),
		RedisURL:            getEnv("SHIPVIEW_REDIS_URL", ""),
		RedisPassword:       getEnv("SHIPVIEW_REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("SHIPVIEW_REDIS_DB", 0),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Issuer:           getEnv("SHIPVIEW_AUTH_ISSUER", ""),
		Audience:         getEnv("SHIPVIEW_AUTH_AUDIENCE", ""),
		Algorithm:        getEnv("SHIPVIEW_AUTH_ALGORITHM", "RS256"),
		KeyServiceURL:    getEnv("SHIPVIEW_AUTH_KEY_SERVICE_URL", ""),
		ProfileURL:       getEnv("SHIPVIEW_AUTH_PROFILE_URL", ""),
		ConnectionPrefix: getEnv("SHIPVIEW_AUTH_CONNECTION_PREFIX", "samlp|"),
		DirectoryURL:     getEnv("SHIPVIEW_DIRECTORY_URL", ""),
		DirectoryToken:   getEnv("SHIPVIEW_DIRECTORY_TOKEN", ""),
		CapabilitySecret: getEnv("SHIPVIEW_CAPABILITY_SECRET", ""),
		AdminGroupID:     getEnvInt64("SHIPVIEW_ADMIN_GROUP_ID", 0),
		LoginURL:         getEnv("SHIPVIEW_LOGIN_URL", "/login"),
		CookieName:       getEnv("SHIPVIEW_AUTH_COOKIE", "shipview_token"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("SHIPVIEW_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("SHIPVIEW_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.Issuer == "" {
		return fmt.Errorf("auth issuer is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("auth audience is required")
	}
	if c.Auth.KeyServiceURL == "" {
		return fmt.Errorf("auth key service URL is required")
	}
	if c.Auth.CapabilitySecret == "" {
		return fmt.Errorf("capability secret is required")
	}
	if c.Auth.AdminGroupID == 0 {
		return fmt.Errorf("admin group id is required")
	}
	if c.Auth.DirectoryURL == "" {
		return fmt.Errorf("directory URL is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
