// Package config provides configuration loading and validation for the feed API.
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

// Config holds all configuration values for the feed API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication. The previous secret is accepted during key rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Redis backs the distributed rate limiter. Empty uses an in-process store.
	RedisURL string `koanf:"redis_url"`

	// Ranking
	RankingCalibrationPath string `koanf:"ranking_calibration_path"`

	// Feed paging and limits
	FeedDefaultPageSize    int `koanf:"feed_default_page_size"`
	FeedMaxPageSize        int `koanf:"feed_max_page_size"`
	FeedRateLimitPerMinute int `koanf:"feed_rate_limit_per_minute"`

	// Upstream circuit breakers
	BreakerFailureThreshold   int `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeoutSeconds int `koanf:"breaker_open_timeout_seconds"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	TracingExporter   string  `koanf:"tracing_exporter"`
	OTLPEndpoint      string  `koanf:"otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidInteger         = errors.New("value must be a valid integer")
	ErrInvalidPageSize        = errors.New("FEED_DEFAULT_PAGE_SIZE must be between 1 and FEED_MAX_PAGE_SIZE")
	ErrInvalidMaxPageSize     = errors.New("FEED_MAX_PAGE_SIZE must be at least 1")
	ErrInvalidRateLimit       = errors.New("FEED_RATE_LIMIT_PER_MINUTE must not be negative")
	ErrInvalidBreaker         = errors.New("BREAKER_FAILURE_THRESHOLD and BREAKER_OPEN_TIMEOUT_SECONDS must be at least 1")
	ErrInvalidTracingExporter = errors.New("TRACING_EXPORTER must be otlp-grpc or otlp-http")
	ErrInvalidSampleRate      = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                      = 8080
	DefaultEnv                       = "development"
	DefaultRankingCalibrationPath    = "configs/ranking.calibration.json"
	DefaultFeedPageSize              = 20
	DefaultFeedMaxPageSize           = 100
	DefaultFeedRateLimitPerMinute    = 120
	DefaultBreakerFailureThreshold   = 5
	DefaultBreakerOpenTimeoutSeconds = 30
	DefaultTracingExporter           = "otlp-http"
	DefaultTracingSampleRate         = 0.1
)

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

	// Try FEEDRANK_PORT first, then PORT
	port, portErr := getEnvIntOrDefaultMulti([]string{"FEEDRANK_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	intSetting := func(envKey, koanfKey string, def int) int {
		v, err := getEnvIntOrDefault(envKey, k.Int(koanfKey), def)
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
		return v
	}

	defaultPageSize := intSetting("FEED_DEFAULT_PAGE_SIZE", "feed_default_page_size", DefaultFeedPageSize)
	maxPageSize := intSetting("FEED_MAX_PAGE_SIZE", "feed_max_page_size", DefaultFeedMaxPageSize)
	rateLimit := intSetting("FEED_RATE_LIMIT_PER_MINUTE", "feed_rate_limit_per_minute", DefaultFeedRateLimitPerMinute)
	breakerThreshold := intSetting("BREAKER_FAILURE_THRESHOLD", "breaker_failure_threshold", DefaultBreakerFailureThreshold)
	breakerTimeout := intSetting("BREAKER_OPEN_TIMEOUT_SECONDS", "breaker_open_timeout_seconds", DefaultBreakerOpenTimeoutSeconds)

	sampleRate, sampleErr := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k.Float64("tracing_sample_rate"), DefaultTracingSampleRate)
	if sampleErr != nil {
		loadErrs = append(loadErrs, sampleErr)
	}

	cfg := &Config{
		Port:                      port,
		Env:                       getEnvOrDefaultMulti([]string{"FEEDRANK_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:               getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:                 getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:         getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		RedisURL:                  getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		RankingCalibrationPath:    getEnvOrDefault("RANKING_CALIBRATION_PATH", k.String("ranking_calibration_path"), DefaultRankingCalibrationPath),
		FeedDefaultPageSize:       defaultPageSize,
		FeedMaxPageSize:           maxPageSize,
		FeedRateLimitPerMinute:    rateLimit,
		BreakerFailureThreshold:   breakerThreshold,
		BreakerOpenTimeoutSeconds: breakerTimeout,
		TracingEnabled:            getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:           getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		OTLPEndpoint:              getEnvOrKoanf("OTLP_ENDPOINT", k, "otlp_endpoint"),
		TracingSampleRate:         sampleRate,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
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

// getEnvBoolOrKoanf parses a boolean flag. Unrecognised env values fall back
// to the file value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
// A zero value from a YAML file falls back to the default.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInteger)
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

// Validate checks that all required configuration values are present and in range.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	if c.FeedMaxPageSize < 1 {
		errs = append(errs, ErrInvalidMaxPageSize)
	} else if c.FeedDefaultPageSize < 1 || c.FeedDefaultPageSize > c.FeedMaxPageSize {
		errs = append(errs, ErrInvalidPageSize)
	}
	if c.FeedRateLimitPerMinute < 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.BreakerFailureThreshold < 1 || c.BreakerOpenTimeoutSeconds < 1 {
		errs = append(errs, ErrInvalidBreaker)
	}

	if c.TracingEnabled {
		if c.TracingExporter != "otlp-grpc" && c.TracingExporter != "otlp-http" {
			errs = append(errs, ErrInvalidTracingExporter)
		}
		if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
			errs = append(errs, ErrInvalidSampleRate)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                         strconv.Itoa(c.Port),
		"env":                          c.Env,
		"database_url":                 maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":                   maskSecret(c.JWTSecret),
		"jwt_previous_secret":          maskSecret(c.JWTPreviousSecret),
		"redis_url":                    maskDatabaseURL(c.RedisURL),
		"ranking_calibration_path":     c.RankingCalibrationPath,
		"feed_default_page_size":       strconv.Itoa(c.FeedDefaultPageSize),
		"feed_max_page_size":           strconv.Itoa(c.FeedMaxPageSize),
		"feed_rate_limit_per_minute":   strconv.Itoa(c.FeedRateLimitPerMinute),
		"breaker_failure_threshold":    strconv.Itoa(c.BreakerFailureThreshold),
		"breaker_open_timeout_seconds": strconv.Itoa(c.BreakerOpenTimeoutSeconds),
		"tracing_enabled":              strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":             c.TracingExporter,
		"otlp_endpoint":                c.OTLPEndpoint,
		"tracing_sample_rate":          strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL (postgres://, redis://).
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.LastIndex(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
