package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                     string        `mapstructure:"PORT"`
	Env                      string        `mapstructure:"ENV"`
	LogLevel                 string        `mapstructure:"LOG_LEVEL"`
	Store                    string        `mapstructure:"STORE"`
	DatabaseURL              string        `mapstructure:"DATABASE_URL"`
	DBMaxConns               int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns               int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL                 string        `mapstructure:"REDIS_URL"`
	LockMode                 string        `mapstructure:"LOCK_MODE"`
	LockTTL                  time.Duration `mapstructure:"LOCK_TTL"`
	DirectoryCacheTTL        time.Duration `mapstructure:"DIRECTORY_CACHE_TTL"`
	AllocationMaxRetries     int           `mapstructure:"ALLOCATION_MAX_RETRIES"`
	DefaultBookingWindowDays int           `mapstructure:"DEFAULT_BOOKING_WINDOW_DAYS"`
	DefaultMinutesPerPatient int           `mapstructure:"DEFAULT_MINUTES_PER_PATIENT"`
	Timezone                 string        `mapstructure:"TIMEZONE"`
	CORSOrigins              []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout           time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS             float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst           int           `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled           bool          `mapstructure:"METRICS_ENABLED"`
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LockLocal = "local"
	LockRedis = "redis"
	LockNone  = "none"
)

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "LOCK_MODE", "LOCK_TTL", "DIRECTORY_CACHE_TTL", "ALLOCATION_MAX_RETRIES",
	"DEFAULT_BOOKING_WINDOW_DAYS", "DEFAULT_MINUTES_PER_PATIENT", "TIMEZONE", "CORS_ORIGINS",
	"REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "METRICS_ENABLED",
}

// Load reads .env (if present) and the environment. It does not validate;
// call Validate before starting the server.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LOCK_MODE", LockLocal)
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("DIRECTORY_CACHE_TTL", "1m")
	v.SetDefault("ALLOCATION_MAX_RETRIES", 5)
	v.SetDefault("DEFAULT_BOOKING_WINDOW_DAYS", 30)
	v.SetDefault("DEFAULT_MINUTES_PER_PATIENT", 15)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("METRICS_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.LockMode = strings.ToLower(strings.TrimSpace(cfg.LockMode))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location resolves TIMEZONE. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is %q", StorePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	switch c.LockMode {
	case LockLocal, LockNone:
	case LockRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_MODE is %q", LockRedis)
		}
		if c.LockTTL <= 0 {
			return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
		}
	default:
		return fmt.Errorf("LOCK_MODE must be %q, %q or %q, got %q", LockLocal, LockRedis, LockNone, c.LockMode)
	}

	if c.AllocationMaxRetries < 1 {
		return fmt.Errorf("ALLOCATION_MAX_RETRIES must be at least 1, got %d", c.AllocationMaxRetries)
	}
	if c.DefaultBookingWindowDays < 0 {
		return fmt.Errorf("DEFAULT_BOOKING_WINDOW_DAYS must not be negative, got %d", c.DefaultBookingWindowDays)
	}
	if c.DefaultMinutesPerPatient < 1 {
		return fmt.Errorf("DEFAULT_MINUTES_PER_PATIENT must be at least 1, got %d", c.DefaultMinutesPerPatient)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}
