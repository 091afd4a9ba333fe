// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, storage,
// model backend, verification pipeline, delivery, and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects where history and key-value state live.
type StorageConfig struct {
	Backend string // gorm|redis (STORE_BACKEND)
	Driver  string // sqlite|mysql (DB_DRIVER)
	DBPath  string // sqlite file
	DSN     string // mysql DSN

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// GeminiConfig configures the cloud model backend.
type GeminiConfig struct {
	APIKey  string        // GEMINI_API_KEY; fallback when no key is stored
	Model   string        // GEMINI_MODEL
	BaseURL string        // GEMINI_BASE_URL; empty uses the SDK default
	Timeout time.Duration // MODEL_TIMEOUT
}

// LocalModelConfig configures the on-device model backend (Ollama).
type LocalModelConfig struct {
	Enabled      bool
	URL          string
	Model        string
	ProbeTimeout time.Duration
}

// VerifyConfig tunes the verification pipeline.
type VerifyConfig struct {
	CacheCapacity     int
	HistoryMax        int
	Preprocess        bool
	MaxContentLength  int
	MaxClaimRunes     int
	MaxImageBytes     int64
	FetchTimeout      time.Duration
	DedupeInflight    bool
	MaxUploadBodySize int64
}

// DeliveryConfig tunes push delivery of status updates.
type DeliveryConfig struct {
	Attempts   int
	Backoff    time.Duration
	WebhookURL string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string
	LogPretty   bool
	APIBasePath string

	Storage  StorageConfig
	Gemini   GeminiConfig
	Local    LocalModelConfig
	Verify   VerifyConfig
	Delivery DeliveryConfig

	// JWTSecret enables bearer authentication when non-empty.
	JWTSecret string

	// Rate limiting
	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Storage: StorageConfig{
			Backend:       strings.ToLower(getenv("STORE_BACKEND", "gorm")),
			Driver:        strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DBPath:        getenv("DB_PATH", "veritas.db"),
			DSN:           getenv("DB_DSN", ""),
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			RedisPrefix:   getenv("REDIS_PREFIX", "veritas:"),
		},

		Gemini: GeminiConfig{
			APIKey:  getenv("GEMINI_API_KEY", ""),
			Model:   getenv("GEMINI_MODEL", "gemini-2.5-flash"),
			BaseURL: getenv("GEMINI_BASE_URL", ""),
			Timeout: getdur("MODEL_TIMEOUT", 60*time.Second),
		},

		Local: LocalModelConfig{
			Enabled:      getbool("LOCAL_MODEL_ENABLED", true),
			URL:          getenv("OLLAMA_URL", "http://localhost:11434"),
			Model:        getenv("LOCAL_MODEL", "gemma3:1b"),
			ProbeTimeout: getdur("LOCAL_PROBE_TIMEOUT", 2*time.Second),
		},

		Verify: VerifyConfig{
			CacheCapacity:     getint("CACHE_CAPACITY", 10),
			HistoryMax:        getint("HISTORY_MAX", 20),
			Preprocess:        getbool("PREPROCESS_ENABLED", true),
			MaxContentLength:  getint("MAX_CONTENT_LENGTH", 15000),
			MaxClaimRunes:     getint("MAX_CLAIM_RUNES", 4000),
			MaxImageBytes:     int64(getint("MAX_IMAGE_BYTES", 8<<20)),
			FetchTimeout:      getdur("FETCH_TIMEOUT", 20*time.Second),
			DedupeInflight:    getbool("DEDUPE_INFLIGHT", true),
			MaxUploadBodySize: int64(getint("MAX_BODY_BYTES", 12<<20)),
		},

		Delivery: DeliveryConfig{
			Attempts:   getint("DELIVERY_ATTEMPTS", 3),
			Backoff:    getdur("DELIVERY_BACKOFF", 200*time.Millisecond),
			WebhookURL: getenv("WEBHOOK_URL", ""),
		},

		JWTSecret: getenv("JWT_SECRET", ""),

		RateRPS:   getfloat("RATE_RPS", 2.0),
		RateBurst: getint("RATE_BURST", 5),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "veritas-backend"),
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
	switch cfg.Storage.Backend {
	case "gorm":
	case "redis":
		if strings.TrimSpace(cfg.Storage.RedisAddr) == "" {
			return cfg, errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	default:
		return cfg, errors.New("STORE_BACKEND must be one of: gorm, redis")
	}
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "mysql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return cfg, errors.New("DB_DSN is required when DB_DRIVER=mysql")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, mysql")
	}
	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		return cfg, errors.New("GEMINI_MODEL must not be empty")
	}
	if cfg.Gemini.Timeout <= 0 || cfg.Verify.FetchTimeout <= 0 || cfg.Local.ProbeTimeout <= 0 {
		return cfg, errors.New("model, fetch, and probe timeouts must be positive durations")
	}
	if cfg.Verify.CacheCapacity < 1 {
		return cfg, errors.New("CACHE_CAPACITY must be >= 1")
	}
	if cfg.Verify.HistoryMax < 1 {
		return cfg, errors.New("HISTORY_MAX must be >= 1")
	}
	if cfg.Verify.MaxContentLength < 1 {
		return cfg, errors.New("MAX_CONTENT_LENGTH must be >= 1")
	}
	if cfg.Verify.MaxImageBytes <= 0 || cfg.Verify.MaxUploadBodySize <= 0 {
		return cfg, errors.New("MAX_IMAGE_BYTES and MAX_BODY_BYTES must be > 0")
	}
	if cfg.Delivery.Attempts < 1 {
		return cfg, errors.New("DELIVERY_ATTEMPTS must be >= 1")
	}
	if cfg.Delivery.Backoff < 0 {
		return cfg, errors.New("DELIVERY_BACKOFF must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	for _, o := range cfg.CORS.AllowedOrigins {
		if !validOrigin(o) {
			return cfg, fmt.Errorf("CORS_ALLOWED_ORIGINS: bad origin %q: must contain '*' or start with %s",
				o, strings.Join(originSchemes, ", "))
		}
	}

	return cfg, nil
}

// ---- helpers ----

// originSchemes are the origin prefixes the CORS middleware accepts for an
// allowlist that includes browser extensions.
var originSchemes = []string{"http://", "https://", "chrome-extension://", "safari-extension://", "moz-extension://", "ms-browser-extension://"}

func validOrigin(o string) bool {
	if strings.Contains(o, "*") {
		return true
	}
	for _, s := range originSchemes {
		if strings.HasPrefix(o, s) {
			return true
		}
	}
	return false
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
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
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
