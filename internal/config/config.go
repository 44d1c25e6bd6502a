// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// API clients.
	AdminAPIKey string // Key for the built-in "admin" client.
	APIKeys     string // Extra clients as "client_id:role:api_key,...".

	// Rate limiting, per authenticated client.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Report cache.
	ReportCacheTTL        time.Duration
	ReportCacheMaxEntries int

	// Evaluation settings.
	EvaluationProfile string // Optional YAML profile path; empty means defaults.
	HookTimeout       time.Duration

	// OTEL settings.
	OTELEndpoint   string
	OTELInsecure   bool
	ServiceName    string
	MetricsEnabled bool // Serve Prometheus metrics on /metrics.

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port, err = envInt("TURNEVAL_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("TURNEVAL_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("TURNEVAL_WRITE_TIMEOUT", 30*time.Second)
	collect(err)
	bodyBytes, err := envInt("TURNEVAL_MAX_REQUEST_BODY_BYTES", 1*1024*1024) // 1 MB default
	collect(err)
	cfg.MaxRequestBodyBytes = int64(bodyBytes)

	cfg.JWTPrivateKeyPath = envStr("TURNEVAL_JWT_PRIVATE_KEY", "")
	cfg.JWTPublicKeyPath = envStr("TURNEVAL_JWT_PUBLIC_KEY", "")
	cfg.JWTExpiration, err = envDuration("TURNEVAL_JWT_EXPIRATION", 24*time.Hour)
	collect(err)

	cfg.AdminAPIKey = envStr("TURNEVAL_ADMIN_API_KEY", "")
	cfg.APIKeys = envStr("TURNEVAL_API_KEYS", "")

	cfg.RateLimitEnabled, err = envBool("TURNEVAL_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("TURNEVAL_RATE_LIMIT_RPS", 10)
	collect(err)
	cfg.RateLimitBurst, err = envInt("TURNEVAL_RATE_LIMIT_BURST", 20)
	collect(err)

	cfg.ReportCacheTTL, err = envDuration("TURNEVAL_REPORT_CACHE_TTL", time.Hour)
	collect(err)
	cfg.ReportCacheMaxEntries, err = envInt("TURNEVAL_REPORT_CACHE_MAX_ENTRIES", 10000)
	collect(err)

	cfg.EvaluationProfile = envStr("TURNEVAL_EVALUATION_PROFILE", "")
	cfg.HookTimeout, err = envDuration("TURNEVAL_HOOK_TIMEOUT", 5*time.Second)
	collect(err)

	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTELInsecure, err = envBool("TURNEVAL_OTEL_INSECURE", false)
	collect(err)
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "turneval")
	cfg.MetricsEnabled, err = envBool("TURNEVAL_METRICS_ENABLED", true)
	collect(err)

	cfg.LogLevel = envStr("TURNEVAL_LOG_LEVEL", "info")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("TURNEVAL_PORT must be in 1..65535"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("TURNEVAL_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.JWTExpiration <= 0 {
		errs = append(errs, fmt.Errorf("TURNEVAL_JWT_EXPIRATION must be positive"))
	}
	if (c.JWTPrivateKeyPath == "") != (c.JWTPublicKeyPath == "") {
		errs = append(errs, fmt.Errorf("TURNEVAL_JWT_PRIVATE_KEY and TURNEVAL_JWT_PUBLIC_KEY must be set together"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("TURNEVAL_RATE_LIMIT_RPS and TURNEVAL_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if c.ReportCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("TURNEVAL_REPORT_CACHE_TTL must be positive"))
	}
	if c.ReportCacheMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("TURNEVAL_REPORT_CACHE_MAX_ENTRIES must be positive"))
	}
	if c.HookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TURNEVAL_HOOK_TIMEOUT must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("TURNEVAL_LOG_LEVEL=%q must be one of debug, info, warn, error", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
