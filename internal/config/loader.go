package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// Load reads configuration from environment variables, applies defaults
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envTag is the parsed form of a field's env, envAlt, default, required
// and unit tags.
type envTag struct {
	name     string
	alt      string
	fallback string
	required bool
	unit     string
}

func parseTag(f reflect.StructField) envTag {
	return envTag{
		name:     f.Tag.Get("env"),
		alt:      f.Tag.Get("envAlt"),
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
		unit:     f.Tag.Get("unit"),
	}
}

// lookup returns the raw value for the tag: the primary variable, then the
// alternate, then the default.
func (t envTag) lookup() (string, error) {
	if v := os.Getenv(t.name); v != "" {
		return v, nil
	}
	if t.alt != "" {
		if v := os.Getenv(t.alt); v != "" {
			return v, nil
		}
	}
	if t.required {
		return "", fmt.Errorf("required environment variable %s is not set", t.name)
	}
	return t.fallback, nil
}

// loadStruct fills the tagged fields of v, descending into nested sections.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		tag := parseTag(sf)
		if tag.name == "" {
			continue
		}
		value, err := tag.lookup()
		if err != nil {
			return err
		}
		if value == "" {
			continue
		}
		if err := setField(fv, value, tag.unit); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", tag.name, value, err)
		}
	}

	return nil
}

// setField parses value into field according to its kind. Integers tagged
// unit:"bytes" accept size suffixes such as "512KB" or "20MB".
func setField(field reflect.Value, value, unit string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case field.Kind() == reflect.Int || field.Kind() == reflect.Int64:
		parse := func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
		if unit == "bytes" {
			parse = parseByteSize
		}
		n, err := parse(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		field.Set(reflect.ValueOf(splitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}

	return nil
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(value string) []string {
	out := []string{}
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var byteUnits = []struct {
	suffix string
	size   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize parses a plain byte count or a count with a binary KB, MB
// or GB suffix.
func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, u := range byteUnits {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(num), u.size
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > (1<<63-1)/mult {
		return 0, fmt.Errorf("size %d out of range", n)
	}
	return n * mult, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL != "" {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.BatchSize <= 0 {
		errs = append(errs, "UPLOAD_BATCH_SIZE must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}
	validEncodings := map[string]bool{"utf-8": true, "windows-1251": true, "windows-1252": true, "iso-8859-1": true}
	if !validEncodings[strings.ToLower(c.Upload.Encoding)] {
		errs = append(errs, fmt.Sprintf("UPLOAD_ENCODING (%q) must be one of: utf-8, windows-1251, windows-1252, iso-8859-1", c.Upload.Encoding))
	}

	if c.Import.MaxStoredErrors <= 0 {
		errs = append(errs, "IMPORT_MAX_STORED_ERRORS must be positive")
	}
	if c.Import.DryRunErrorLimit <= 0 {
		errs = append(errs, "IMPORT_DRY_RUN_ERROR_LIMIT must be positive")
	}
	if c.Import.PreviewRows <= 0 {
		errs = append(errs, "IMPORT_PREVIEW_ROWS must be positive")
	}

	switch strings.ToLower(c.Stats.Backend) {
	case "memory", "redis":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "STATS_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		errs = append(errs, fmt.Sprintf("STATS_BACKEND (%q) must be one of: memory, postgres, redis", c.Stats.Backend))
	}
	if c.Stats.TTL <= 0 {
		errs = append(errs, "STATS_TTL must be positive")
	}
	if strings.EqualFold(c.Stats.Backend, "redis") && c.Redis.URL == "" {
		errs = append(errs, "STATS_BACKEND=redis requires REDIS_URL")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, "STORAGE_BACKEND=s3 requires S3_BUCKET")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND (%q) must be one of: local, s3", c.Storage.Backend))
	}

	if c.Sideload.Enabled && c.Sideload.MaxBytes <= 0 {
		errs = append(errs, "SIDELOAD_MAX_BYTES must be positive when sideloading is enabled")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

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

// String returns a safe string representation of the config for logging.
// Connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	if c.Database.URL != "" {
		fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d}, ", c.Database.MaxConns)
	} else {
		b.WriteString("Database: {disabled}, ")
	}
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, MaxConcurrent: %d, BatchSize: %d}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.BatchSize)
	fmt.Fprintf(&b, "Stats: {Backend: %q, TTL: %s}, ", c.Stats.Backend, c.Stats.TTL)
	fmt.Fprintf(&b, "Storage: {Backend: %q, Bucket: %q}, ", c.Storage.Backend, c.Storage.Bucket)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
