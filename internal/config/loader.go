package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileEnvVar names the environment variable that points at an optional
// TOML or YAML file.
const FileEnvVar = "CONFIG_FILE"

// Load reads configuration from the file named by CONFIG_FILE (if any) and
// from environment variables. Precedence is default < file < environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnvVar))
}

// LoadFile is like Load but reads the file overlay from path. Files ending in
// .yaml or .yml are YAML, anything else TOML. An empty path skips the file layer.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	v := reflect.ValueOf(cfg).Elem()

	if err := walk(v, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := walk(v, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := walk(v, checkRequired); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// decodeFile overlays file values onto cfg. Keys that do not map to a
// config field are rejected so typos surface at startup.
func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(path, cfg)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// decodeYAML is the YAML counterpart of the TOML path in decodeFile. An empty
// file leaves cfg untouched.
func decodeYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type fieldFunc func(field reflect.StructField, fieldVal reflect.Value) error

// walk recursively visits every tagged leaf field of a config struct.
func walk(v reflect.Value, fn fieldFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, fieldVal reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(fieldVal, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, fieldVal reflect.Value) error {
	envName := field.Tag.Get("env")

	// Try primary env var, then alternate
	value := os.Getenv(envName)
	if value == "" {
		if alt := field.Tag.Get("envAlt"); alt != "" {
			value = os.Getenv(alt)
		}
	}
	if value == "" {
		return nil
	}

	if err := setField(fieldVal, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
	}
	return nil
}

func checkRequired(field reflect.StructField, fieldVal reflect.Value) error {
	if field.Tag.Get("required") == "true" && fieldVal.IsZero() {
		return fmt.Errorf("required environment variable %s is not set", field.Tag.Get("env"))
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// State
	if c.State.Path == "" {
		errs = append(errs, "STATE_DB_PATH is required")
	}

	// Import
	if c.Import.UploadDir == "" {
		errs = append(errs, "IMPORT_UPLOAD_DIR is required")
	}
	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if len(c.Import.AllowedExtensions) == 0 {
		errs = append(errs, "IMPORT_ALLOWED_EXTENSIONS must list at least one extension")
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, "IMPORT_BATCH_SIZE must be positive")
	}
	if c.Import.ProcessTimeout <= 0 {
		errs = append(errs, "IMPORT_PROCESS_TIMEOUT must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if r, err := decimal.NewFromString(c.Import.NetRatio); err != nil || !r.IsPositive() || r.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("IMPORT_NET_RATIO (%q) must be a decimal in (0, 1]", c.Import.NetRatio))
	}
	columns := []struct{ env, col string }{
		{"IMPORT_COLUMN_DATE", c.Import.DateColumn},
		{"IMPORT_COLUMN_RECEIPT", c.Import.ReceiptColumn},
		{"IMPORT_COLUMN_SERVICE", c.Import.ServiceColumn},
		{"IMPORT_COLUMN_STYLIST", c.Import.StylistColumn},
		{"IMPORT_COLUMN_AMOUNT", c.Import.AmountColumn},
	}
	for _, col := range columns {
		if !isColumnLetter(col.col) {
			errs = append(errs, fmt.Sprintf("%s (%q) must be a column letter such as A or AB", col.env, col.col))
		}
	}

	// Rate limit
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Sweep
	if c.Sweep.Enabled {
		if c.Sweep.SessionTTL <= 0 {
			errs = append(errs, "SWEEP_SESSION_TTL must be positive when the sweeper is enabled")
		}
		if c.Sweep.Interval <= 0 {
			errs = append(errs, "SWEEP_INTERVAL must be positive when the sweeper is enabled")
		}
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isColumnLetter(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("State: {Path: %q}, ", c.State.Path))
	b.WriteString(fmt.Sprintf("Import: {UploadDir: %q, BatchSize: %d, ProcessTimeout: %s, MaxConcurrent: %d}, ",
		c.Import.UploadDir, c.Import.BatchSize, c.Import.ProcessTimeout, c.Import.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
