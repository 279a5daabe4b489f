// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Redis (stats cache)
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication. JWTPreviousSecret is optional and enables
	// zero-downtime secret rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Leveling
	LevelThresholds []int64 `koanf:"level_thresholds"`
	MinWatchedMs    int64   `koanf:"min_watched_ms"`

	// Stats cache TTL in seconds. Zero means the default.
	StatsCacheTTLSeconds int `koanf:"stats_cache_ttl_seconds"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSampleRate   float64 `koanf:"tracing_sample_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidLevelThresholds = errors.New("LEVEL_THRESHOLDS must be a positive strictly ascending list")
	ErrInvalidMinWatched      = errors.New("MIN_WATCHED_MS must be non-negative")
	ErrInvalidTracingSampling = errors.New("TRACING_SAMPLE_RATE must be between 0.0 and 1.0")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultMinWatchedMs      = 1
	DefaultStatsCacheTTLSecs = 30
	DefaultTracingExporter   = "otlp-http"
	DefaultTracingSampleRate = 0.1
)

// DefaultLevelThresholds is the experience table used when none is configured.
var DefaultLevelThresholds = []int64{100, 250, 500, 1000, 2000, 4000, 8000, 16000}

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try VIDCLASS_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"VIDCLASS_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	minWatchedMs, minWatchedErr := getEnvInt64OrDefault("MIN_WATCHED_MS", k.Int64("min_watched_ms"), DefaultMinWatchedMs)
	if minWatchedErr != nil {
		loadErrs = append(loadErrs, minWatchedErr)
	}

	cacheTTL, cacheTTLErr := getEnvIntOrDefault("STATS_CACHE_TTL_SECONDS", k.Int("stats_cache_ttl_seconds"), DefaultStatsCacheTTLSecs)
	if cacheTTLErr != nil {
		loadErrs = append(loadErrs, cacheTTLErr)
	}

	thresholds, thresholdsErr := getLevelThresholds(k)
	if thresholdsErr != nil {
		loadErrs = append(loadErrs, thresholdsErr)
	}

	sampleRate, sampleRateErr := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k.Float64("tracing_sample_rate"), DefaultTracingSampleRate)
	if sampleRateErr != nil {
		loadErrs = append(loadErrs, sampleRateErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                 port,
		Env:                  getEnvOrDefaultMulti([]string{"VIDCLASS_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:          getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:             getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:            getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:    getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		LevelThresholds:      thresholds,
		MinWatchedMs:         minWatchedMs,
		StatsCacheTTLSeconds: cacheTTL,
		TracingEnabled:       getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:      getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingOTLPEndpoint:  getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSampleRate:    sampleRate,
		TracingInsecure:      getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing_insecure", false),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getLevelThresholds resolves the experience table from the LEVEL_THRESHOLDS
// env var (comma-separated), the config file, or the built-in default.
func getLevelThresholds(k *koanf.Koanf) ([]int64, error) {
	if val := os.Getenv("LEVEL_THRESHOLDS"); val != "" {
		parts := strings.Split(val, ",")
		thresholds := make([]int64, 0, len(parts))
		for _, part := range parts {
			n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("LEVEL_THRESHOLDS entry %q is not an integer: %w", part, ErrInvalidLevelThresholds)
			}
			thresholds = append(thresholds, n)
		}
		return thresholds, nil
	}
	if k.Exists("level_thresholds") {
		return k.Int64s("level_thresholds"), nil
	}
	return append([]int64(nil), DefaultLevelThresholds...), nil
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvInt64OrDefault returns the environment variable as int64 if set, otherwise the koanf value, or default.
func getEnvInt64OrDefault(envKey string, koanfVal int64, defaultVal int64) (int64, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as bool if set, otherwise the koanf value, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
		return defaultVal
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return defaultVal
}

// Validate checks that all required configuration values are present and
// well-formed. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if err := validateThresholds(c.LevelThresholds); err != nil {
		errs = append(errs, err)
	}
	if c.MinWatchedMs < 0 {
		errs = append(errs, ErrInvalidMinWatched)
	}
	if c.TracingSampleRate < 0.0 || c.TracingSampleRate > 1.0 {
		errs = append(errs, ErrInvalidTracingSampling)
	}

	return errs
}

func validateThresholds(thresholds []int64) error {
	if len(thresholds) == 0 {
		return ErrInvalidLevelThresholds
	}
	prev := int64(0)
	for _, t := range thresholds {
		if t <= prev {
			return ErrInvalidLevelThresholds
		}
		prev = t
	}
	return nil
}

// IsProduction returns true if the environment is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
