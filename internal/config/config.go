// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr  string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	JWTSecret  []byte
	SessionTTL time.Duration
	TempTTL    time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string

	TelegramBotToken string

	NotifyWorkers     int
	RetentionInterval time.Duration

	IngestRatePerSec float64
	IngestBurst      int
}

// Load reads configuration. A missing .env file is not an error; explicit
// environment variables always win over file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		TempTTL:           getEnvDuration("TEMP_TOKEN_TTL", 5*time.Minute),
		VAPIDPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:   getEnv("VAPID_SUBSCRIBER", "mailto:admin@localhost"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		NotifyWorkers:     getEnvInt("NOTIFY_WORKERS", 4),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 5*time.Minute),
		IngestRatePerSec:  getEnvFloat("INGEST_RATE", 100),
		IngestBurst:       getEnvInt("INGEST_BURST", 200),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if len(secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET is required and must be at least 32 bytes")
	}
	cfg.JWTSecret = []byte(secret)

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
