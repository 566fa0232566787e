// Package config provides application configuration loaded from environment
// variables with defaults and validation: server timeouts, logging, storage,
// the conversational agent, turn dispatch, matching thresholds, the turn
// lock, rate limiting and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the ledger store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file
	URL    string // Postgres DSN
}

// AgentConfig points at the hosted assistant.
type AgentConfig struct {
	APIKey      string // OPENAI_API_KEY
	BaseURL     string // OPENAI_BASE_URL, empty for the public API
	AssistantID string // ASSISTANT_ID
}

// DispatchConfig bounds a single conversation turn.
type DispatchConfig struct {
	PollInterval     time.Duration // POLL_INTERVAL
	MaxTurnWait      time.Duration // MAX_TURN_WAIT
	RemoteMaxRetries int           // REMOTE_MAX_RETRIES
	RemoteBackoff    time.Duration // REMOTE_BACKOFF
}

// MatchConfig holds fuzzy matching thresholds on the 0..100 scale.
type MatchConfig struct {
	Threshold      int
	BrandThreshold int
}

// LockConfig selects the per-user turn lock. An empty RedisAddr keeps the
// lock in process.
type LockConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed MaxTurnWait
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	DB       DBConfig
	Agent    AgentConfig
	Dispatch DispatchConfig
	Match    MatchConfig
	Lock     LockConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// IdempotencyTTL is how long a stored reply is replayed for a redelivered message.
	IdempotencyTTL time.Duration

	// Observability
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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 150*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "inventory.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Agent: AgentConfig{
			APIKey:      getenv("OPENAI_API_KEY", ""),
			BaseURL:     getenv("OPENAI_BASE_URL", ""),
			AssistantID: getenv("ASSISTANT_ID", ""),
		},
		Dispatch: DispatchConfig{
			PollInterval:     getdur("POLL_INTERVAL", time.Second),
			MaxTurnWait:      getdur("MAX_TURN_WAIT", 2*time.Minute),
			RemoteMaxRetries: getint("REMOTE_MAX_RETRIES", 3),
			RemoteBackoff:    getdur("REMOTE_BACKOFF", 500*time.Millisecond),
		},
		Match: MatchConfig{
			Threshold:      getint("MATCH_THRESHOLD", 80),
			BrandThreshold: getint("BRAND_THRESHOLD", 80),
		},
		Lock: LockConfig{
			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
			TTL:           getdur("TURN_LOCK_TTL", 3*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 1.0),
		RateBurst: getint("RATE_BURST", 5),

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-inventory-bot"),
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
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DB.Driver)
	}

	if cfg.Dispatch.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be > 0")
	}
	if cfg.Dispatch.MaxTurnWait < cfg.Dispatch.PollInterval {
		return errors.New("MAX_TURN_WAIT must be >= POLL_INTERVAL")
	}
	if cfg.WriteTimeout <= cfg.Dispatch.MaxTurnWait {
		return errors.New("WRITE_TIMEOUT must exceed MAX_TURN_WAIT")
	}
	if cfg.Dispatch.RemoteMaxRetries < 0 {
		return errors.New("REMOTE_MAX_RETRIES must be >= 0")
	}
	if cfg.Dispatch.RemoteBackoff <= 0 {
		return errors.New("REMOTE_BACKOFF must be > 0")
	}

	if cfg.Match.Threshold < 0 || cfg.Match.Threshold > 100 {
		return errors.New("MATCH_THRESHOLD must be between 0 and 100")
	}
	if cfg.Match.BrandThreshold < 0 || cfg.Match.BrandThreshold > 100 {
		return errors.New("BRAND_THRESHOLD must be between 0 and 100")
	}
	if cfg.Lock.TTL <= cfg.Dispatch.MaxTurnWait {
		return errors.New("TURN_LOCK_TTL must exceed MAX_TURN_WAIT")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// AgentConfigured reports whether the assistant credentials are present.
// Without them the conversation endpoints are not mounted.
func (cfg Config) AgentConfigured() bool {
	return cfg.Agent.APIKey != "" && cfg.Agent.AssistantID != ""
}

// Env lookups fall back to def when the variable is unset, empty or does
// not parse.

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getbool(k string, def bool) bool {
	return lookup(k, def, func(v string) (bool, error) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a bool: %q", v)
	})
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
