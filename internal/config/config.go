// Package config provides centralized configuration management for the import service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Import   ImportConfig
	Stats    StatsConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Sideload SideloadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
// An empty URL runs the service on in-memory backends.
type DatabaseConfig struct {
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds uploaded-file and batch execution settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size, e.g. "100MB" or a byte count.
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"100MB" unit:"bytes"`

	// MaxConcurrent is the maximum number of batches or dry runs executing at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an execution slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the rows per batch for operations that do not set one (default: 50)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"50"`

	// Timeout bounds a single batch or dry run (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`

	// Dir is where uploaded CSV files are kept for the local storage backend
	Dir string `env:"UPLOAD_DIR" default:"./data/uploads"`

	// Encoding of uploaded files: utf-8, windows-1251, windows-1252, iso-8859-1
	Encoding string `env:"UPLOAD_ENCODING" default:"utf-8"`
}

// ImportConfig holds run bookkeeping limits.
type ImportConfig struct {
	// MaxStoredErrors caps the row errors kept on a run record (default: 20)
	MaxStoredErrors int `env:"IMPORT_MAX_STORED_ERRORS" default:"20"`

	// DryRunErrorLimit caps the errors returned by a dry run (default: 20)
	DryRunErrorLimit int `env:"IMPORT_DRY_RUN_ERROR_LIMIT" default:"20"`

	// PreviewRows is the default number of rows returned by a preview (default: 5)
	PreviewRows int `env:"IMPORT_PREVIEW_ROWS" default:"5"`
}

// StatsConfig selects and tunes the run statistics store.
type StatsConfig struct {
	// Backend is memory, postgres or redis (default: memory)
	Backend string `env:"STATS_BACKEND" default:"memory"`

	// TTL is how long a run record lives after its last write (default: 7 days)
	TTL time.Duration `env:"STATS_TTL" default:"168h"`

	// SweepSchedule is the cron expression for purging expired records
	SweepSchedule string `env:"STATS_SWEEP_SCHEDULE" default:"@every 1h"`
}

// RedisConfig holds Redis connection settings for the redis stats backend.
type RedisConfig struct {
	URL    string `env:"REDIS_URL" default:"redis://localhost:6379/0"`
	Prefix string `env:"REDIS_KEY_PREFIX" default:"csvimport"`
}

// StorageConfig selects where uploaded files and sideloaded media are kept.
type StorageConfig struct {
	// Backend is local or s3 (default: local)
	Backend  string `env:"STORAGE_BACKEND" default:"local"`
	Bucket   string `env:"S3_BUCKET"`
	Region   string `env:"AWS_REGION" envAlt:"S3_REGION" default:"us-east-1"`
	Prefix   string `env:"S3_PREFIX" default:"imports"`
	Endpoint string `env:"S3_ENDPOINT"`

	// MediaDir is where sideloaded media is written for the local backend
	MediaDir string `env:"MEDIA_DIR" default:"./data/media"`

	// MediaBaseURL is prefixed to stored media keys to build public URLs
	MediaBaseURL string `env:"MEDIA_BASE_URL" default:"/media"`
}

// SideloadConfig controls fetching remote attachments referenced by URL.
type SideloadConfig struct {
	Enabled  bool          `env:"SIDELOAD_ENABLED" default:"true"`
	Timeout  time.Duration `env:"SIDELOAD_TIMEOUT" default:"20s"`
	MaxBytes int64         `env:"SIDELOAD_MAX_BYTES" default:"20MB" unit:"bytes"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 600)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"600"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on the API routes
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
