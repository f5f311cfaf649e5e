// Package config provides centralized configuration management for the importer.
// Values come from an optional TOML file and from environment variables, with
// environment variables taking precedence. All settings are validated on startup
// to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `toml:"server" yaml:"server"`
	Database DatabaseConfig  `toml:"database" yaml:"database"`
	State    StateConfig     `toml:"state" yaml:"state"`
	Import   ImportConfig    `toml:"import" yaml:"import"`
	Rate     RateLimitConfig `toml:"rate" yaml:"rate"`
	Security SecurityConfig  `toml:"security" yaml:"security"`
	Logging  LoggingConfig   `toml:"logging" yaml:"logging"`
	Sweep    SweepConfig     `toml:"sweep" yaml:"sweep"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `toml:"host" yaml:"host" env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `toml:"port" yaml:"port" env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `toml:"read_timeout" yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 6m, above the process timeout)
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"6m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `toml:"idle_timeout" yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds ledger database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `toml:"url" yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `toml:"max_conns" yaml:"max_conns" env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `toml:"min_conns" yaml:"min_conns" env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `toml:"max_conn_lifetime" yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `toml:"max_conn_idle_time" yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StateConfig holds settings for the durable job/session/status store.
type StateConfig struct {
	// Path is the SQLite database file (default: data/state.db)
	Path string `toml:"path" yaml:"path" env:"STATE_DB_PATH" default:"data/state.db"`

	// BusyTimeout is how long SQLite waits on a locked database (default: 5s)
	BusyTimeout time.Duration `toml:"busy_timeout" yaml:"busy_timeout" env:"STATE_BUSY_TIMEOUT" default:"5s"`
}

// ImportConfig holds spreadsheet import settings.
type ImportConfig struct {
	// UploadDir is where received spreadsheets are stored until processed (default: data/uploads)
	UploadDir string `toml:"upload_dir" yaml:"upload_dir" env:"IMPORT_UPLOAD_DIR" default:"data/uploads"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 20MB)
	MaxFileSize int64 `toml:"max_file_size" yaml:"max_file_size" env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// AllowedExtensions lists accepted file extensions (default: .xlsx,.csv)
	AllowedExtensions []string `toml:"allowed_extensions" yaml:"allowed_extensions" env:"IMPORT_ALLOWED_EXTENSIONS" default:".xlsx,.csv"`

	// BatchSize is the number of rows per ledger insert statement (default: 500)
	BatchSize int `toml:"batch_size" yaml:"batch_size" env:"IMPORT_BATCH_SIZE" default:"500"`

	// ProcessTimeout bounds a single process run (default: 5m)
	ProcessTimeout time.Duration `toml:"process_timeout" yaml:"process_timeout" env:"IMPORT_PROCESS_TIMEOUT" default:"5m"`

	// MaxConcurrent is the maximum number of jobs processed in parallel (default: 2)
	MaxConcurrent int `toml:"max_concurrent" yaml:"max_concurrent" env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a processing slot (default: 30s)
	MaxWaitTime time.Duration `toml:"max_wait_time" yaml:"max_wait_time" env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// NetRatio is the multiplier applied to gross amounts (default: 0.86)
	NetRatio string `toml:"net_ratio" yaml:"net_ratio" env:"IMPORT_NET_RATIO" default:"0.86"`

	// Column letters for each field in the sales export.
	DateColumn    string `toml:"date_column" yaml:"date_column" env:"IMPORT_COLUMN_DATE" default:"A"`
	ReceiptColumn string `toml:"receipt_column" yaml:"receipt_column" env:"IMPORT_COLUMN_RECEIPT" default:"B"`
	ServiceColumn string `toml:"service_column" yaml:"service_column" env:"IMPORT_COLUMN_SERVICE" default:"E"`
	StylistColumn string `toml:"stylist_column" yaml:"stylist_column" env:"IMPORT_COLUMN_STYLIST" default:"H"`
	AmountColumn  string `toml:"amount_column" yaml:"amount_column" env:"IMPORT_COLUMN_AMOUNT" default:"Q"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `toml:"enabled" yaml:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `toml:"requests_per_minute" yaml:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload and process endpoints (default: 10)
	UploadLimit int `toml:"upload_limit" yaml:"upload_limit" env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `toml:"trusted_proxies" yaml:"trusted_proxies" env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables bearer-token auth on /api routes (default: true)
	RequireAPIKey bool `toml:"require_api_key" yaml:"require_api_key" env:"REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of accepted bearer tokens
	APIKeys []string `toml:"api_keys" yaml:"api_keys" env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `toml:"enable_csp" yaml:"enable_csp" env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `toml:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `toml:"format" yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// SweepConfig controls cleanup of sessions that were staged but never processed.
type SweepConfig struct {
	// Enabled turns the sweeper on (default: true)
	Enabled bool `toml:"enabled" yaml:"enabled" env:"SWEEP_ENABLED" default:"true"`

	// SessionTTL is how long a validated session may wait for processing (default: 24h)
	SessionTTL time.Duration `toml:"session_ttl" yaml:"session_ttl" env:"SWEEP_SESSION_TTL" default:"24h"`

	// Interval is how often the sweeper runs (default: 1h)
	Interval time.Duration `toml:"interval" yaml:"interval" env:"SWEEP_INTERVAL" default:"1h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
