package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env  string `validate:"required,oneof=local dev prod"`
	Port string `validate:"required,numeric"`

	JWTSecret string        `validate:"required,min=16"`
	JWTExpiry time.Duration `validate:"gt=0"`

	StoreDriver string `validate:"required,oneof=redis sqlite"`
	RedisURL    string `validate:"required_if=StoreDriver redis"`
	RedisPass   string
	RedisDB     int    `validate:"gte=0,lte=15"`
	SQLitePath  string `validate:"required_if=StoreDriver sqlite"`

	SeedRotateEvery time.Duration `validate:"gt=0"`
	CrashTick       time.Duration `validate:"gt=0"`
	LobbyCountdown  time.Duration `validate:"gt=0"`
	StaleGameAge    time.Duration `validate:"gt=0"`

	BetRateLimit    int `validate:"gt=0"`
	ActionRateLimit int `validate:"gt=0"`
}

// Load reads the process environment. Callers load .env beforehand.
func Load() (*Config, error) {
	const op = "config.Load"

	cfg := &Config{
		Env:  getEnv("APP_ENV", EnvLocal),
		Port: getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		StoreDriver: getEnv("STORE_DRIVER", "redis"),
		RedisURL:    getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:   getEnv("REDIS_PASSWORD", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "casino.db"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.BetRateLimit, err = getInt("BET_RATE_LIMIT", 30); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.ActionRateLimit, err = getInt("ACTION_RATE_LIMIT", 120); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"JWT_EXPIRY", 24 * time.Hour, &cfg.JWTExpiry},
		{"SEED_ROTATE_EVERY", 24 * time.Hour, &cfg.SeedRotateEvery},
		{"CRASH_TICK", 100 * time.Millisecond, &cfg.CrashTick},
		{"LOBBY_COUNTDOWN", 300 * time.Second, &cfg.LobbyCountdown},
		{"STALE_GAME_AGE", 30 * time.Minute, &cfg.StaleGameAge},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%s: invalid configuration: %w", op, err)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
