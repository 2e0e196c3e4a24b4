package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Backend modes select where voucher records, delivery quotes and orders come from.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	BackendMode        string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string
	RunMigrations      bool

	BackendBaseURL      string
	BackendTimeout      time.Duration
	BackendMaxRetries   int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	CurrencySymbol string
	CartTTL        time.Duration
	SessionTTL     time.Duration
	IdempotencyTTL time.Duration
	QuoteTimeout   time.Duration
	QuoteCacheTTL  time.Duration

	DeliveryBaseFee    decimal.Decimal
	DeliveryPerKmFee   decimal.Decimal
	DeliveryMaxKm      float64
	RiderSpeedKmh      float64
	KitchenPrepMinutes int
	RateLimitStrategy  string
	VoucherApplyLimit  int
	VoucherApplyWindow time.Duration
	WorkerConcurrency  int
	SettleTaskMaxRetry int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		BackendMode:        strings.ToLower(valueOrDefault(k.String("BACKEND_MODE"), BackendLocal)),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS")),

		BackendBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		BackendTimeout:      parseDuration(k.String("BACKEND_TIMEOUT"), "10s"),
		BackendMaxRetries:   parseInt(k.String("BACKEND_MAX_RETRIES"), 2),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),

		CurrencySymbol: valueOrDefault(k.String("CURRENCY_SYMBOL"), "₱"),
		CartTTL:        parseDuration(k.String("CART_TTL"), "72h"),
		SessionTTL:     parseDuration(k.String("CHECKOUT_SESSION_TTL"), "2h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		QuoteTimeout:   parseDuration(k.String("QUOTE_TIMEOUT"), "10s"),
		QuoteCacheTTL:  parseDuration(k.String("QUOTE_CACHE_TTL"), "5m"),

		DeliveryBaseFee:    parseDecimal(k.String("DELIVERY_BASE_FEE"), "39"),
		DeliveryPerKmFee:   parseDecimal(k.String("DELIVERY_PER_KM_FEE"), "8"),
		DeliveryMaxKm:      parseFloat(k.String("DELIVERY_MAX_KM"), 12),
		RiderSpeedKmh:      parseFloat(k.String("RIDER_SPEED_KMH"), 25),
		KitchenPrepMinutes: parseInt(k.String("KITCHEN_PREP_MINUTES"), 15),
		RateLimitStrategy:  strings.ToLower(valueOrDefault(k.String("RATE_LIMIT_STRATEGY"), "sliding")),
		VoucherApplyLimit:  parseInt(k.String("VOUCHER_APPLY_LIMIT"), 10),
		VoucherApplyWindow: parseDuration(k.String("VOUCHER_APPLY_WINDOW"), "1m"),
		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 10),
		SettleTaskMaxRetry: parseInt(k.String("SETTLE_TASK_MAX_RETRY"), 10),
	}

	switch cfg.BackendMode {
	case BackendLocal:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when BACKEND_MODE=local")
		}
	case BackendRemote:
		if cfg.BackendBaseURL == "" {
			return nil, errors.New("BACKEND_BASE_URL is required when BACKEND_MODE=remote")
		}
	default:
		return nil, fmt.Errorf("BACKEND_MODE must be %q or %q, got %q", BackendLocal, BackendRemote, cfg.BackendMode)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RateLimitStrategy != "sliding" && cfg.RateLimitStrategy != "fixed" {
		return nil, fmt.Errorf("RATE_LIMIT_STRATEGY must be sliding or fixed, got %q", cfg.RateLimitStrategy)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Local reports whether the service is its own voucher and delivery backend.
func (c *Config) Local() bool {
	return c.BackendMode == BackendLocal
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDecimal(value, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil || d.IsNegative() {
		return decimal.RequireFromString(fallback)
	}
	return d
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
