// Package config loads settings for the ingest CLI and the catalog daemon
// from environment variables, applies defaults and validates the result so
// misconfiguration fails before any artifact is touched.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Catalog  CatalogConfig
	Ingest   IngestConfig
	Server   ServerConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// CatalogConfig holds the remote catalog connection used by the ingest CLI.
type CatalogConfig struct {
	// BaseURL is the catalog root, without the /api/v1 suffix
	BaseURL string `env:"CATALOG_BASE_URL" default:"http://localhost:8080"`

	// Project scopes every request (default: default)
	Project string `env:"CATALOG_PROJECT" default:"default"`

	// APIKey is sent in the api-key header
	APIKey string `env:"COGNITE_API_KEY" envAlt:"CATALOG_API_KEY"`

	// Timeout bounds one HTTP request (default: 30s)
	Timeout time.Duration `env:"CATALOG_TIMEOUT" default:"30s"`

	// MaxRetries is the number of retries for 429 and 5xx responses (default: 5)
	MaxRetries int `env:"CATALOG_MAX_RETRIES" default:"5"`

	// PageSize is the list page size (default: 1000)
	PageSize int `env:"CATALOG_PAGE_SIZE" default:"1000"`
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	// BatchSize is the number of datapoints per insert request (default: 1000)
	BatchSize int `env:"INGEST_BATCH_SIZE" default:"1000"`

	// SaveFiles keeps extracted bundle content next to the archive
	SaveFiles bool `env:"INGEST_SAVE_FILES" default:"false"`

	// PushgatewayURL receives run metrics when set
	PushgatewayURL string `env:"INGEST_PUSHGATEWAY_URL"`
}

// ServerConfig holds catalog daemon HTTP settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps request bodies (default: 64MiB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"67108864"`

	// MaxConcurrentWrites bounds concurrent create and insert requests (default: 8)
	MaxConcurrentWrites int `env:"SERVER_MAX_CONCURRENT_WRITES" default:"8"`

	// WriteWait is how long a write waits for a slot before a 503 (default: 30s)
	WriteWait time.Duration `env:"SERVER_WRITE_WAIT" default:"30s"`
}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// DatabaseConfig holds the catalog daemon store settings.
type DatabaseConfig struct {
	// Backend selects the store: memory or postgres (default: memory)
	Backend string `env:"CATALOG_STORE" default:"memory"`

	// URL is the PostgreSQL connection string, required for the postgres backend.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds per-IP rate limiting for the catalog daemon.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 1200)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"1200"`
}

// SecurityConfig holds catalog daemon security settings.
type SecurityConfig struct {
	// RequireAPIKey rejects requests without a valid api-key header
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or tint (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
