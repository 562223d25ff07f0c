package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Port      string
	Env       string
	JWTSecret string
	JWTTTL    time.Duration

	// CORSHosts are the dashboard hosts allowed to call the API from a browser.
	CORSHosts []string

	DB          DatabaseConfig
	Redis       RedisConfig
	Worker      WorkerConfig
	Notify      NotifyConfig
	S3          S3Config
	Idempotency IdempotencyConfig
	RateLimit   RateLimitConfig
	Admin       AdminConfig
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	ExpiryInterval    time.Duration
	StaleInterval     time.Duration
	StaleRequestAfter time.Duration
}

// NotifyConfig configures the notification task queue.
type NotifyConfig struct {
	Concurrency    int
	Queue          string
	WebhookTimeout time.Duration
	MaxRetry       int
}

// S3Config contains storage configuration for payment proofs.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	MaxProofBytes   int64
}

// Enabled reports whether proof uploads can be stored. Without static keys
// the default AWS credential chain is used.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// IdempotencyConfig controls the Idempotency-Key guard on request creation.
type IdempotencyConfig struct {
	TTL        time.Duration
	BalanceTTL time.Duration
}

// AdminConfig is the bootstrap administrator created at startup when set.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

// RateLimitConfig limits login attempts per client IP.
type RateLimitConfig struct {
	LoginPerMinute int
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Production environments may rely solely on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.CORSHosts = splitList(getEnv("CORS_ALLOWED_HOSTS", "localhost:3000"))

	// Database
	cfg.DB = DatabaseConfig{
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", "redis"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Notifications
	cfg.Notify = NotifyConfig{
		Concurrency: getEnvInt("NOTIFY_CONCURRENCY", 5),
		Queue:       getEnv("NOTIFY_QUEUE", "notifications"),
		MaxRetry:    getEnvInt("NOTIFY_MAX_RETRY", 5),
	}

	// S3 (payment proofs)
	cfg.S3 = S3Config{
		Region:          getEnv("S3_REGION", "ap-southeast-3"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		MaxProofBytes:   int64(getEnvInt("S3_MAX_PROOF_BYTES", 5<<20)),
	}

	cfg.Admin = AdminConfig{
		Email:    getEnv("ADMIN_EMAIL", ""),
		Password: getEnv("ADMIN_PASSWORD", ""),
		Name:     getEnv("ADMIN_NAME", "Administrator"),
	}

	cfg.RateLimit = RateLimitConfig{
		LoginPerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
	}

	// Durations
	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.Worker.ExpiryInterval, err = parseDurationEnv("SUBSCRIPTION_EXPIRY_INTERVAL", "5m"); err != nil {
		return nil, fmt.Errorf("invalid SUBSCRIPTION_EXPIRY_INTERVAL: %w", err)
	}
	if cfg.Worker.StaleInterval, err = parseDurationEnv("STALE_REQUEST_INTERVAL", "15m"); err != nil {
		return nil, fmt.Errorf("invalid STALE_REQUEST_INTERVAL: %w", err)
	}
	if cfg.Worker.StaleRequestAfter, err = parseDurationEnv("STALE_REQUEST_AFTER", "24h"); err != nil {
		return nil, fmt.Errorf("invalid STALE_REQUEST_AFTER: %w", err)
	}
	if cfg.Notify.WebhookTimeout, err = parseDurationEnv("WEBHOOK_TIMEOUT", "20s"); err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}
	if cfg.Idempotency.TTL, err = parseDurationEnv("IDEMPOTENCY_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	if cfg.Idempotency.BalanceTTL, err = parseDurationEnv("BALANCE_CACHE_TTL", "30s"); err != nil {
		return nil, fmt.Errorf("invalid BALANCE_CACHE_TTL: %w", err)
	}

	if cfg.DB.Host == "" || cfg.DB.User == "" || cfg.DB.Name == "" {
		return nil, errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set for authentication")
	}

	if cfg.Admin.Email != "" && len(cfg.Admin.Password) < 8 {
		return nil, errors.New("ADMIN_PASSWORD must be at least 8 characters when ADMIN_EMAIL is set")
	}

	if cfg.RateLimit.LoginPerMinute < 1 {
		return nil, errors.New("LOGIN_RATE_PER_MINUTE must be at least 1")
	}

	if cfg.Notify.Concurrency < 1 {
		return nil, errors.New("NOTIFY_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
