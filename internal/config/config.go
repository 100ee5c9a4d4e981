package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ulule/limiter/v3"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string
	LogMode     string

	// Upper bound for a single storage round-trip.
	DBTimeout       time.Duration
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	ShutdownTimeout time.Duration

	// Empty RedisAddr keeps the rate limiter in process memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ulule formatted rate, e.g. "60-M", applied to admin mutations.
	AdminRateLimit string

	// Tracing is off unless OTEL_ENABLED is set. Without an OTLP endpoint
	// spans go to stdout.
	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
	Environment     string
}

const defaultDSN = "host=localhost user=postgres password=postgres dbname=jewelry port=5432 sslmode=disable"

// Load reads .env (if present) and the environment, then validates.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:     getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogMode:         getEnv("LOG_MODE", "dev"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		AdminRateLimit:  getEnv("ADMIN_RATE_LIMIT", "60-M"),
		OtelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Environment:     getEnv("APP_ENV", "development"),
		DBTimeout:       5 * time.Second,
		DBMaxOpenConns:  20,
		DBMaxIdleConns:  5,
		ShutdownTimeout: 15 * time.Second,
	}

	var errs []error
	var err error
	if cfg.DBTimeout, err = getDuration("DB_TIMEOUT", cfg.DBTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", cfg.DBMaxOpenConns); err != nil {
		errs = append(errs, err)
	}
	if cfg.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", cfg.DBMaxIdleConns); err != nil {
		errs = append(errs, err)
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.OtelEnabled, err = getBool("OTEL_ENABLED", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.OtelInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.OtelSampleRatio, err = getFloat("OTEL_SAMPLER_RATIO", 0.1); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once instead of stopping at the first.
func (c *Config) Validate() error {
	var errs []string

	if c.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, "DATABASE_DSN is required")
	}
	if port, err := strconv.Atoi(c.HTTPPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Sprintf("HTTP_PORT (%s) must be 1-65535", c.HTTPPort))
	}
	if c.DBTimeout <= 0 {
		errs = append(errs, "DB_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.DBMaxOpenConns <= 0 {
		errs = append(errs, "DB_MAX_OPEN_CONNS must be positive")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS")
	}
	if c.OtelSampleRatio < 0 || c.OtelSampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("OTEL_SAMPLER_RATIO (%g) must be between 0 and 1", c.OtelSampleRatio))
	}
	if _, err := limiter.NewRateFromFormatted(c.AdminRateLimit); err != nil {
		errs = append(errs, fmt.Sprintf("ADMIN_RATE_LIMIT (%s) is not a valid rate", c.AdminRateLimit))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// UsesDefaultDSN is true when DATABASE_DSN was not set; main warns about it.
func (c *Config) UsesDefaultDSN() bool {
	return c.DatabaseDSN == defaultDSN
}

// CORSOriginList splits the comma separated CORS_ALLOWED_ORIGINS value.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return b, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}
