// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage paths, cache TTLs, rate limiting,
// upstream endpoints, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fittrackpro/go-fitness-edge/internal/sysutil"
)

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-fitness-edge")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AIConfig defines the text-generation providers. The primary provider is any
// OpenAI-compatible endpoint (a local llama server in the default deployment);
// the fallback is stock OpenAI. Provider set to "openai" flips the order.
type AIConfig struct {
	Provider       string        // "" (primary first) | "openai"
	OpenAIAPIKey   string        // OPENAI_API_KEY
	OpenAIModel    string        // OPENAI_MODEL
	PrimaryBaseURL string        // PRIMARY_AI_BASE_URL (OpenAI-compatible)
	PrimaryAPIKey  string        // PRIMARY_AI_API_KEY (may be empty for local)
	PrimaryModel   string        // PRIMARY_AI_MODEL
	MaxTokens      int           // cap per completion
	Timeout        time.Duration // per-call budget
}

// CacheConfig groups the TTLs applied by the tiered cache.
type CacheConfig struct {
	ProfileTTL    time.Duration // both tiers for public profile snapshots
	ProxyTTL      time.Duration // generic API proxy entries
	StaticTTL     time.Duration // edge-cached static assets
	ProfileHint   time.Duration // Cache-Control max-age on profile responses
	ServiceWorker time.Duration // Cache-Control max-age for /sw.js
}

// RateLimitConfig groups abuse control: the KV-backed daily quota applied to
// AI endpoints and the in-process burst limiter in front of everything.
type RateLimitConfig struct {
	AIDailyLimit int           // requests per identity per window
	AIWindow     time.Duration // quota window (one day by default)
	BurstRPS     float64       // token-bucket refill for the edge limiter
	Burst        int           // token-bucket size
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Upstreams
	BackendOrigin   string        // base URL of the origin backend ("" disables proxying)
	AssetOrigin     string        // base URL for static assets (defaults to BackendOrigin)
	UpstreamTimeout time.Duration // bound on origin fetches

	// Storage
	DBPath           string // SQLite path for the relational edge store
	KVPath           string // Badger directory ("" runs in-memory)
	ExerciseSeedPath string // optional JSON seed for the exercise index
	UploadsEnabled   bool   // expose the uploads object store

	// Chat
	ChatHistoryLimit int // messages pushed on WebSocket connect
	ChatRetention    int // persisted messages kept per room

	Cache     CacheConfig
	RateLimit RateLimitConfig
	AI        AIConfig
	Security  SecurityConfig
	OTEL      OTELConfig
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
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Upstreams
		BackendOrigin:   strings.TrimRight(getenv("BACKEND_ORIGIN", ""), "/"),
		AssetOrigin:     strings.TrimRight(getenv("ASSET_ORIGIN", ""), "/"),
		UpstreamTimeout: getdur("UPSTREAM_TIMEOUT", 10*time.Second),

		// Storage
		DBPath:           getenv("DB_PATH", "edge.db"),
		KVPath:           getenv("KV_PATH", "kv-data"),
		ExerciseSeedPath: getenv("EXERCISE_SEED_PATH", ""),
		UploadsEnabled:   getbool("UPLOADS_ENABLED", true),

		// Chat
		ChatHistoryLimit: getint("CHAT_HISTORY_LIMIT", 50),
		ChatRetention:    getint("CHAT_RETENTION", 1000),

		Cache: CacheConfig{
			ProfileTTL:    getdur("PROFILE_CACHE_TTL", 1800*time.Second),
			ProxyTTL:      getdur("PROXY_CACHE_TTL", 300*time.Second),
			StaticTTL:     getdur("STATIC_CACHE_TTL", 86400*time.Second),
			ProfileHint:   getdur("PROFILE_MAX_AGE", 300*time.Second),
			ServiceWorker: getdur("SW_MAX_AGE", 3600*time.Second),
		},

		RateLimit: RateLimitConfig{
			AIDailyLimit: getint("AI_DAILY_LIMIT", 100),
			AIWindow:     getdur("AI_LIMIT_WINDOW", 24*time.Hour),
			BurstRPS:     getfloat("RATE_RPS", 25.0),
			Burst:        getint("RATE_BURST", 50),
		},

		AI: AIConfig{
			Provider:       strings.ToLower(getenv("AI_PROVIDER", "")),
			OpenAIAPIKey:   getenv("OPENAI_API_KEY", ""),
			OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o-mini"),
			PrimaryBaseURL: strings.TrimRight(getenv("PRIMARY_AI_BASE_URL", ""), "/"),
			PrimaryAPIKey:  getenv("PRIMARY_AI_API_KEY", ""),
			PrimaryModel:   getenv("PRIMARY_AI_MODEL", "llama-3-8b-instruct"),
			MaxTokens:      getint("AI_MAX_TOKENS", 512),
			Timeout:        getdur("AI_TIMEOUT", 10*time.Second),
		},

		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-fitness-edge"),
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
	cfg.AssetOrigin = sysutil.FirstNonEmpty(cfg.AssetOrigin, cfg.BackendOrigin)
	if cfg.AI.Provider != "openai" {
		cfg.AI.Provider = ""
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.UpstreamTimeout <= 0 {
		return cfg, errors.New("UPSTREAM_TIMEOUT must be > 0")
	}
	if cfg.Cache.ProfileTTL <= 0 || cfg.Cache.ProxyTTL <= 0 || cfg.Cache.StaticTTL <= 0 {
		return cfg, errors.New("cache TTLs must be positive durations")
	}
	if cfg.ChatRetention < 1 {
		return cfg, errors.New("CHAT_RETENTION must be >= 1")
	}
	if cfg.ChatHistoryLimit < 1 {
		return cfg, errors.New("CHAT_HISTORY_LIMIT must be >= 1")
	}
	if cfg.RateLimit.AIDailyLimit < 1 {
		return cfg, errors.New("AI_DAILY_LIMIT must be >= 1")
	}
	if cfg.RateLimit.AIWindow <= 0 {
		return cfg, errors.New("AI_LIMIT_WINDOW must be > 0")
	}
	if cfg.RateLimit.BurstRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateLimit.Burst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	return sysutil.FirstNonEmpty(os.Getenv(k), def)
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return sysutil.IsTruthy(v)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
