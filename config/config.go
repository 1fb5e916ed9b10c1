package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Browser   BrowserConfig
	Session   SessionConfig
	Shots     ShotsConfig
	Run       RunConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Storage   StorageConfig
	Log       LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless. Operators
	// solving CAPTCHAs need a visible window, so the default is false.
	Headless bool // default: false

	// Proxy is the proxy URL for all requests.
	Proxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects the stealth evasion script before every navigation.
	Stealth bool // default: true

	WindowWidth  int // default: 1600
	WindowHeight int // default: 1000

	// BlockedResourceTypes lists resource types to block. Images stay
	// enabled by default because screenshots are evidence.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks known ad and tracking domains.
	BlockAds bool // default: true

	// AcceptLanguage is sent as an extra header on every request.
	AcceptLanguage string // default: "ru-RU,ru;q=0.9"
}

// SessionConfig controls per-listing navigation and readiness.
type SessionConfig struct {
	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 60s

	// SettleDelay is slept after navigation before the body is scanned.
	SettleDelay time.Duration // default: 3s

	// PollInterval is the interval between document readiness checks.
	PollInterval time.Duration // default: 300ms

	// Heartbeat is how often a pending intervention is re-logged.
	Heartbeat time.Duration // default: 30s

	// ReadyAttempts and ReadyInterval bound the readiness probe.
	ReadyAttempts int           // default: 20
	ReadyInterval time.Duration // default: 1s

	// DOMReadyTimeout bounds the document readiness fallback.
	DOMReadyTimeout time.Duration // default: 60s

	// HoverSettle is slept after hover, scroll and resize actions.
	HoverSettle time.Duration // default: 1.5s
}

// ShotsConfig controls screenshot evidence.
type ShotsConfig struct {
	Enabled bool   // default: true
	Root    string // default: "Скриншоты"

	// MinSize is the minimum viable crop edge in device pixels.
	MinSize int // default: 100

	// TwoShotFraction is the viewport fraction above which a block is
	// captured in two shots.
	TwoShotFraction float64 // default: 0.9
}

// RunConfig controls batch processing.
type RunConfig struct {
	// Output is the JSON interchange file written after every run.
	Output string // default: "listings.json"

	// Pace is the minimum delay between two listings.
	Pace time.Duration // default: 3s

	// CacheMaxAge bounds how long a record is reused for the same URL.
	CacheMaxAge time.Duration // default: 30m

	// CacheMaxEntries is the maximum number of cached records.
	CacheMaxEntries int // default: 1000

	// DuplicateDistance is the SimHash Hamming distance at or below which
	// two descriptions are treated as the same listing.
	DuplicateDistance int // default: 3

	// ProfilesFile optionally overrides built-in site profiles.
	ProfilesFile string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// QueueSize bounds runs waiting behind the active one.
	QueueSize int // default: 16

	// RunTTL is how long finished runs stay queryable.
	RunTTL time.Duration // default: 24h
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

// WebhookConfig controls operator notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// StorageConfig controls optional record persistence.
type StorageConfig struct {
	// PostgresDSN enables the Postgres sink when set.
	PostgresDSN string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json", "text" or "color"; default: "json"
}

// Load reads an optional .env file, then configuration from environment
// variables with sane defaults. Variables already set in the environment
// win over the file.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "files", envFiles, "error", err)
	}

	return &Config{
		Browser: BrowserConfig{
			Headless:       envBoolOr("APPRAISE_HEADLESS", false),
			Proxy:          os.Getenv("APPRAISE_PROXY"),
			NoSandbox:      envBoolOr("APPRAISE_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("APPRAISE_BROWSER_BIN"),
			Stealth:        envBoolOr("APPRAISE_STEALTH", true),
			WindowWidth:    envIntOr("APPRAISE_WINDOW_WIDTH", 1600),
			WindowHeight:   envIntOr("APPRAISE_WINDOW_HEIGHT", 1000),
			BlockAds:       envBoolOr("APPRAISE_BLOCK_ADS", true),
			AcceptLanguage: envOr("APPRAISE_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9"),
			BlockedResourceTypes: envSliceOr("APPRAISE_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Session: SessionConfig{
			NavigationTimeout: envDurationOr("APPRAISE_NAV_TIMEOUT", 60*time.Second),
			SettleDelay:       envDurationOr("APPRAISE_SETTLE_DELAY", 3*time.Second),
			PollInterval:      envDurationOr("APPRAISE_POLL_INTERVAL", 300*time.Millisecond),
			Heartbeat:         envDurationOr("APPRAISE_HEARTBEAT", 30*time.Second),
			ReadyAttempts:     envIntOr("APPRAISE_READY_ATTEMPTS", 20),
			ReadyInterval:     envDurationOr("APPRAISE_READY_INTERVAL", time.Second),
			DOMReadyTimeout:   envDurationOr("APPRAISE_DOM_READY_TIMEOUT", 60*time.Second),
			HoverSettle:       envDurationOr("APPRAISE_HOVER_SETTLE", 1500*time.Millisecond),
		},
		Shots: ShotsConfig{
			Enabled:         envBoolOr("APPRAISE_SCREENSHOTS", true),
			Root:            envOr("APPRAISE_SCREENSHOT_DIR", "Скриншоты"),
			MinSize:         envIntOr("APPRAISE_MIN_CROP", 100),
			TwoShotFraction: envFloatOr("APPRAISE_TWO_SHOT_FRACTION", 0.9),
		},
		Run: RunConfig{
			Output:            envOr("APPRAISE_OUTPUT", "listings.json"),
			Pace:              envDurationOr("APPRAISE_PACE", 3*time.Second),
			CacheMaxAge:       envDurationOr("APPRAISE_CACHE_MAX_AGE", 30*time.Minute),
			CacheMaxEntries:   envIntOr("APPRAISE_CACHE_MAX_ENTRIES", 1000),
			DuplicateDistance: envIntOr("APPRAISE_DUPLICATE_DISTANCE", 3),
			ProfilesFile:      os.Getenv("APPRAISE_PROFILES"),
		},
		Server: ServerConfig{
			Host:      envOr("APPRAISE_HOST", "127.0.0.1"),
			Port:      envIntOr("APPRAISE_PORT", 8080),
			Mode:      envOr("APPRAISE_MODE", "release"),
			QueueSize: envIntOr("APPRAISE_QUEUE_SIZE", 16),
			RunTTL:    envDurationOr("APPRAISE_RUN_TTL", 24*time.Hour),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("APPRAISE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("APPRAISE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("APPRAISE_RATE_RPS", 5.0),
			Burst:             envIntOr("APPRAISE_RATE_BURST", 10),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("APPRAISE_WEBHOOK_URL"),
			Secret: os.Getenv("APPRAISE_WEBHOOK_SECRET"),
		},
		Storage: StorageConfig{
			PostgresDSN: os.Getenv("APPRAISE_POSTGRES_DSN"),
		},
		Log: LogConfig{
			Level:  envOr("APPRAISE_LOG_LEVEL", "info"),
			Format: envOr("APPRAISE_LOG_FORMAT", "json"),
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

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
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
