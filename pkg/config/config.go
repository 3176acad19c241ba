package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/foliohq/folio/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Authz         AuthzConfig
	Links         LinksConfig
	Policy        PolicyConfig
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

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis configuration for the rate limiter
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

// AuthzConfig holds permission resolution settings
type AuthzConfig struct {
	// MaxAncestorDepth bounds the folder ancestor walk; exceeding it is
	// treated as "no further ancestors", never an error.
	MaxAncestorDepth int

	// ResolveTimeout bounds a single resolution; the API layer treats a
	// timeout as deny while logging it as an infrastructure failure.
	ResolveTimeout time.Duration

	// CacheSize is the number of decision cache entries; zero disables
	// the cache.
	CacheSize int

	// BatchConcurrency bounds parallel resolutions in a batch request.
	BatchConcurrency int
}

// LinksConfig holds public link settings
type LinksConfig struct {
	// PurgeSchedule is a cron expression for the disabled-link janitor.
	PurgeSchedule string

	// PurgeRetention is how long a disabled link is kept before purging.
	PurgeRetention time.Duration
}

// PolicyConfig locates the action-to-minimum-role policy table
type PolicyConfig struct {
	Path string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Authz:         loadAuthzConfig(),
		Links:         loadLinksConfig(),
		Policy:        loadPolicyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FOLIO_HOST", "0.0.0.0"),
		Port:            getEnv("FOLIO_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FOLIO_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FOLIO_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FOLIO_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FOLIO_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FOLIO_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("FOLIO_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("FOLIO_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("FOLIO_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("FOLIO_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:  getEnvBool("FOLIO_REDIS_ENABLED", false),
		URL:      getEnv("FOLIO_REDIS_URL", "redis://localhost:6379"),
		Password: getEnv("FOLIO_REDIS_PASSWORD", ""),
		DB:       getEnvInt("FOLIO_REDIS_DB", 0),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		MaxAncestorDepth: getEnvInt("FOLIO_MAX_ANCESTOR_DEPTH", 100),
		ResolveTimeout:   getEnvDuration("FOLIO_RESOLVE_TIMEOUT", 2*time.Second),
		CacheSize:        getEnvInt("FOLIO_DECISION_CACHE_SIZE", 0),
		BatchConcurrency: getEnvInt("FOLIO_BATCH_CONCURRENCY", 8),
	}
}

func loadLinksConfig() LinksConfig {
	return LinksConfig{
		PurgeSchedule:  getEnv("FOLIO_LINK_PURGE_SCHEDULE", "@hourly"),
		PurgeRetention: getEnvDuration("FOLIO_LINK_PURGE_RETENTION", 30*24*time.Hour),
	}
}

func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Path: getEnv("FOLIO_POLICY_PATH", ""),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("FOLIO_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FOLIO_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FOLIO_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FOLIO_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FOLIO_OTEL_SERVICE_NAME", "folio"),
		OTelServiceVersion: getEnv("FOLIO_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FOLIO_OTEL_INSECURE", true),
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Authz.MaxAncestorDepth <= 0 {
		return fmt.Errorf("max ancestor depth must be positive")
	}
	if c.Authz.BatchConcurrency <= 0 {
		return fmt.Errorf("batch concurrency must be positive")
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required when redis is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
