package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Redis     RedisConfig
	Locking   LockingConfig
	Worker    WorkerConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Policy    PolicyConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP intake server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 8

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string
}

// RedisConfig controls the shared TTL key-value store and job queue.
type RedisConfig struct {
	Address  string // default: "localhost:6379"
	Password string
	DB       int
}

// LockingConfig holds process-wide lock behavior. Lock TTL and backoff
// are policy-versioned knobs, not config.
type LockingConfig struct {
	// DisableLocks bypasses lock and throttle for every session this
	// process enqueues (test/CI paths).
	DisableLocks bool // default: false
}

// WorkerConfig controls the job worker pool.
type WorkerConfig struct {
	// Concurrency is the global worker concurrency limit (distinct
	// domains crawled in parallel).
	Concurrency int // default: 4

	// QueueKey is the redis list used as the job queue.
	QueueKey string // default: "storelens:jobs"
}

// StoreConfig controls session persistence and artifact output.
type StoreConfig struct {
	// DBPath is the sqlite database file.
	DBPath string // default: "storelens.db"

	// ArtifactDir is the root directory for evidence artifacts.
	ArtifactDir string // default: "artifacts"

	// EvaluatorURL, when set, receives the evidence-bundle reference
	// for sessions that pass the coverage gate.
	EvaluatorURL string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// PolicyConfig selects the active behavior ruleset.
type PolicyConfig struct {
	// Version is the policy version tag frozen into new sessions.
	// Empty means the built-in default version.
	Version string

	// PackPath optionally points at a YAML policy pack with extra
	// or overridden versions.
	PackPath string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("STORELENS_HOST", "0.0.0.0"),
			Port: envIntOr("STORELENS_PORT", 8080),
			Mode: envOr("STORELENS_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("STORELENS_HEADLESS", true),
			MaxPages:     envIntOr("STORELENS_MAX_PAGES", 8),
			NoSandbox:    envBoolOr("STORELENS_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("STORELENS_BROWSER_BIN"),
			DefaultProxy: os.Getenv("STORELENS_PROXY"),
		},
		Redis: RedisConfig{
			Address:  envOr("STORELENS_REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("STORELENS_REDIS_PASSWORD"),
			DB:       envIntOr("STORELENS_REDIS_DB", 0),
		},
		Locking: LockingConfig{
			DisableLocks: envBoolOr("STORELENS_DISABLE_LOCKS", false),
		},
		Worker: WorkerConfig{
			Concurrency: envIntOr("STORELENS_WORKERS", 4),
			QueueKey:    envOr("STORELENS_QUEUE_KEY", "storelens:jobs"),
		},
		Store: StoreConfig{
			DBPath:       envOr("STORELENS_DB_PATH", "storelens.db"),
			ArtifactDir:  envOr("STORELENS_ARTIFACT_DIR", "artifacts"),
			EvaluatorURL: os.Getenv("STORELENS_EVALUATOR_URL"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("STORELENS_AUTH_ENABLED", true),
			APIKeys: envSliceOr("STORELENS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("STORELENS_RATE_RPS", 5.0),
			Burst:             envIntOr("STORELENS_RATE_BURST", 10),
		},
		Policy: PolicyConfig{
			Version:  envOr("STORELENS_POLICY_VERSION", ""),
			PackPath: os.Getenv("STORELENS_POLICY_PACK"),
		},
		Log: LogConfig{
			Level:  envOr("STORELENS_LOG_LEVEL", "info"),
			Format: envOr("STORELENS_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
