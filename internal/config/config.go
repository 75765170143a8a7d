// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, local database path, remote API access, connectivity probing,
// and the sync engine's drain/retry policy.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RemoteConfig defines access to the remote back-office API.
type RemoteConfig struct {
	BaseURL string        // REMOTE_BASE_URL, e.g. "https://erp.example.com/api"
	Token   string        // REMOTE_API_TOKEN (optional bearer token)
	Timeout time.Duration // REMOTE_TIMEOUT per-request bound
}

// SyncConfig defines connectivity probing and drain/retry policy.
type SyncConfig struct {
	ProbeURL      string        // PROBE_URL; empty derives <REMOTE_BASE_URL>/health
	ProbeInterval time.Duration // PROBE_INTERVAL between health checks
	DrainInterval time.Duration // DRAIN_INTERVAL between periodic backlog drains
	MaxRetries    int           // MAX_REPLAY_RETRIES before an op is flagged failed
	ReplayRPS     float64       // REPLAY_RPS pacing of replay calls (0 = unpaced)
	ReplayBurst   int           // REPLAY_BURST pacing burst size
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	APIBasePath string // base path for API routes
	DBPath      string // SQLite path for the local cache

	Remote RemoteConfig
	Sync   SyncConfig
	CORS   CORSConfig
	OTEL   OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		DBPath:      getenv("DB_PATH", "backoffice.db"),

		Remote: RemoteConfig{
			BaseURL: getenv("REMOTE_BASE_URL", ""),
			Token:   getenv("REMOTE_API_TOKEN", ""),
			Timeout: getdur("REMOTE_TIMEOUT", 15*time.Second),
		},

		Sync: SyncConfig{
			ProbeURL:      getenv("PROBE_URL", ""),
			ProbeInterval: getdur("PROBE_INTERVAL", 10*time.Second),
			DrainInterval: getdur("DRAIN_INTERVAL", 30*time.Second),
			MaxRetries:    getint("MAX_REPLAY_RETRIES", 5),
			ReplayRPS:     getfloat("REPLAY_RPS", 10.0),
			ReplayBurst:   getint("REPLAY_BURST", 5),
		},

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-backoffice-sync"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Sync.ProbeURL == "" && cfg.Remote.BaseURL != "" {
		cfg.Sync.ProbeURL = strings.TrimRight(cfg.Remote.BaseURL, "/") + "/health"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.Remote.BaseURL == "" {
		return cfg, errors.New("REMOTE_BASE_URL must be set")
	}
	if _, err := url.ParseRequestURI(cfg.Remote.BaseURL); err != nil {
		return cfg, errors.New("REMOTE_BASE_URL must be a valid URL")
	}
	if cfg.Sync.MaxRetries < 1 {
		return cfg, errors.New("MAX_REPLAY_RETRIES must be >= 1")
	}
	if cfg.Sync.ProbeInterval <= 0 || cfg.Sync.DrainInterval <= 0 {
		return cfg, errors.New("PROBE_INTERVAL and DRAIN_INTERVAL must be positive")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// getenv returns the env var value or a default when unset/empty.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getdur parses a duration env var, falling back to the default.
func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getint parses an int env var, falling back to the default.
func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getfloat parses a float env var, falling back to the default.
func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getbool parses a boolean env var, falling back to the default.
func getbool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// splitCSV splits a comma-separated value into trimmed non-empty parts.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath guarantees a leading slash and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}
