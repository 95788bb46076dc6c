package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port                      string
	AppEnv                    string
	LogLevel                  string
	LogFormat                 string
	AllowedOrigin             string
	DatabaseURL               string
	RunMigrations             bool
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	StorefrontCacheTTLSeconds int
	TransitionLockTTLSeconds  int
	AuthSecret                string
	AccessTokenTTLMinutes     int
	BusinessTimezone          string
	Location                  *time.Location
	StaffMaxDiscountPercent   float64
}

// Load reads an optional .env file and then the process environment. Values
// already set in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Config{
		Port:                      stringOr(k, "PORT", "8080"),
		AppEnv:                    strings.ToLower(stringOr(k, "APP_ENV", "development")),
		LogLevel:                  stringOr(k, "LOG_LEVEL", "info"),
		AllowedOrigin:             stringOr(k, "ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:               strings.TrimSpace(k.String("DATABASE_URL")),
		RunMigrations:             boolOr(k, "RUN_MIGRATIONS", true),
		RedisAddr:                 strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:             k.String("REDIS_PASSWORD"),
		RedisDB:                   intOr(k, "REDIS_DB", 0, 0),
		StorefrontCacheTTLSeconds: intOr(k, "STOREFRONT_CACHE_TTL_SECONDS", 30, 1),
		TransitionLockTTLSeconds:  intOr(k, "TRANSITION_LOCK_TTL_SECONDS", 10, 1),
		AuthSecret:                strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTLMinutes:     intOr(k, "ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		BusinessTimezone:          stringOr(k, "BUSINESS_TIMEZONE", "UTC"),
		StaffMaxDiscountPercent:   floatOr(k, "STAFF_MAX_DISCOUNT_PERCENT", 10),
	}

	format := "json"
	if cfg.AppEnv == "development" {
		format = "console"
	}
	cfg.LogFormat = stringOr(k, "LOG_FORMAT", format)

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("BUSINESS_TIMEZONE %q: %w", cfg.BusinessTimezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) StorefrontCacheTTL() time.Duration {
	return time.Duration(c.StorefrontCacheTTLSeconds) * time.Second
}

func (c Config) TransitionLockTTL() time.Duration {
	return time.Duration(c.TransitionLockTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func stringOr(k *koanf.Koanf, key string, fallback string) string {
	if v := strings.TrimSpace(k.String(key)); v != "" {
		return v
	}
	return fallback
}

// intOr falls back when the value is missing, malformed or below min.
func intOr(k *koanf.Koanf, key string, fallback int, min int) int {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return fallback
	}
	return v
}

func floatOr(k *koanf.Koanf, key string, fallback float64) float64 {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 100 {
		return fallback
	}
	return v
}

func boolOr(k *koanf.Koanf, key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(k.String(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
