// Package config loads the server configuration from the environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// MinCookieSecretLength matches the session cookie store requirement
const MinCookieSecretLength = 32

// Config validation errors
var (
	ErrInvalidStore        = errors.New("XCROL_STORE must be postgres or memory")
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required for the postgres store")
	ErrShortCookieSecret   = fmt.Errorf("SESSION_COOKIE_SECRET must be at least %d bytes", MinCookieSecretLength)
	ErrInvalidIssuer       = errors.New("OAUTH_ISSUER must be an absolute http(s) URL")
	ErrInvalidTTL          = errors.New("token lifetimes must be positive")
	ErrInvalidLogFormat    = errors.New("LOG_FORMAT must be json or text")
	ErrInvalidLogLevel     = errors.New("LOG_LEVEL must be debug, info, warn or error")
	ErrInvalidRateLimit    = errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	ErrInvalidRefreshOrder = errors.New("OAUTH_REFRESH_TOKEN_TTL must exceed OAUTH_ACCESS_TOKEN_TTL")
)

// Config holds the configuration of the authorization server.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// Store selects the persistence backend: postgres or memory (development only).
	Store string

	DatabaseURL string

	// RedisURL enables the client lookup cache when set.
	RedisURL string

	// Issuer is the public base URL of this server, used in the metadata document.
	Issuer string

	// LoginURL is the XCROL sign-in page users are sent to from the consent flow.
	LoginURL string

	// APIKeys gate the token and user info endpoints. Empty disables the check.
	APIKeys []string

	// SessionJWTSecret verifies platform session JWTs (HS256). Empty disables bearer sessions.
	SessionJWTSecret string

	// SessionCookieSecret decodes the platform browser session cookie.
	SessionCookieSecret string

	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	// CleanupSchedule is the cron spec of the expired grant sweep.
	CleanupSchedule string

	AuthCodeTTL      time.Duration
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	ClientCacheTTL   time.Duration
	CleanupRetention time.Duration

	// RateLimitPerMinute is the global per-IP request budget.
	RateLimitPerMinute int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Port:               "8080",
		Store:              StorePostgres,
		Issuer:             "http://localhost:8080",
		LoginURL:           "http://localhost:3000/login",
		LogLevel:           "info",
		LogFormat:          "json",
		CleanupSchedule:    "17 * * * *",
		AuthCodeTTL:        10 * time.Minute,
		AccessTokenTTL:     1 * time.Hour,
		RefreshTokenTTL:    30 * 24 * time.Hour,
		ClientCacheTTL:     5 * time.Minute,
		CleanupRetention:   24 * time.Hour,
		RateLimitPerMinute: 100,
	}
}

// LoadDotEnv loads .env files when present. Existing environment variables win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("[CONFIG] failed to load env file", "path", p, "error", err)
		}
	}
}

// FromEnv creates a Config from environment variables.
// Uses defaults for any missing environment variables.
//
// Environment variables:
//   - PORT (default: 8080)
//   - XCROL_STORE: postgres or memory (default: postgres)
//   - DATABASE_URL, REDIS_URL
//   - OAUTH_ISSUER, XCROL_LOGIN_URL
//   - XCROL_API_KEYS: comma separated
//   - SESSION_JWT_SECRET, SESSION_COOKIE_SECRET: plain or "base64:" prefixed
//   - OAUTH_AUTH_CODE_TTL, OAUTH_ACCESS_TOKEN_TTL, OAUTH_REFRESH_TOKEN_TTL, CLIENT_CACHE_TTL,
//     CLEANUP_RETENTION: Go durations such as "10m" or "720h"
//   - CLEANUP_SCHEDULE: cron spec (default: "17 * * * *")
//   - CORS_ALLOWED_ORIGINS: comma separated
//   - LOG_LEVEL (default: info), LOG_FORMAT: json or text (default: json)
//   - RATE_LIMIT_PER_MINUTE (default: 100)
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	setString(&cfg.Port, "PORT")
	setString(&cfg.Store, "XCROL_STORE")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.Issuer, "OAUTH_ISSUER")
	setString(&cfg.LoginURL, "XCROL_LOGIN_URL")
	setString(&cfg.CleanupSchedule, "CLEANUP_SCHEDULE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")

	cfg.APIKeys = splitList(os.Getenv("XCROL_API_KEYS"))
	cfg.AllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	var err error
	if cfg.SessionJWTSecret, err = GetEnvBase64OrPlain("SESSION_JWT_SECRET"); err != nil {
		return Config{}, err
	}
	if cfg.SessionCookieSecret, err = GetEnvBase64OrPlain("SESSION_COOKIE_SECRET"); err != nil {
		return Config{}, err
	}

	setDuration(&cfg.AuthCodeTTL, "OAUTH_AUTH_CODE_TTL")
	setDuration(&cfg.AccessTokenTTL, "OAUTH_ACCESS_TOKEN_TTL")
	setDuration(&cfg.RefreshTokenTTL, "OAUTH_REFRESH_TOKEN_TTL")
	setDuration(&cfg.ClientCacheTTL, "CLIENT_CACHE_TTL")
	setDuration(&cfg.CleanupRetention, "CLEANUP_RETENTION")

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = n
		} else {
			slog.Warn("[CONFIG] invalid RATE_LIMIT_PER_MINUTE value, using default",
				"value", v,
				"default", cfg.RateLimitPerMinute,
				"error", err,
			)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidStore, c.Store)
	}

	if len(c.SessionCookieSecret) < MinCookieSecretLength {
		return ErrShortCookieSecret
	}

	u, err := url.Parse(c.Issuer)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: got %q", ErrInvalidIssuer, c.Issuer)
	}

	if c.AuthCodeTTL <= 0 || c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return ErrInvalidTTL
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		return ErrInvalidRefreshOrder
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRateLimit, c.RateLimitPerMinute)
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.Issuer, "https://")
}

// ParseLogLevel maps LOG_LEVEL to a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: got %q", ErrInvalidLogLevel, level)
	}
}

// GetEnvBase64OrPlain retrieves an environment variable that may be base64 encoded.
// If the value starts with "base64:", it will be decoded.
// Otherwise, it returns the plain value.
//
// Example usage in .env:
//
//	SESSION_COOKIE_SECRET=plain-text-secret-of-32-bytes-or-more
//	SESSION_COOKIE_SECRET=base64:c2VjcmV0...
func GetEnvBase64OrPlain(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", nil
	}

	if strings.HasPrefix(value, "base64:") {
		encoded := strings.TrimPrefix(value, "base64:")
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return "", fmt.Errorf("invalid base64 encoding for %s: %w", key, err)
		}
		return string(decoded), nil
	}

	return value, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("[CONFIG] invalid duration, using default",
			"key", key,
			"value", v,
			"default", dst.String(),
			"error", err,
		)
		return
	}
	*dst = d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
