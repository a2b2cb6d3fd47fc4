package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPAddr           string
	PostgresDSN        string
	RedisAddr          string
	KafkaBrokers       []string
	NotificationsTopic string
	JWTSecret          string
	OTLPEndpoint       string
	LogLevel           string
	StorageDriver      string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKER")),
		NotificationsTopic: os.Getenv("NOTIFICATIONS_TOPIC"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		StorageDriver:      strings.ToLower(os.Getenv("STORAGE_DRIVER")),
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=marketplace sslmode=disable"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.NotificationsTopic == "" {
		cfg.NotificationsTopic = "notifications"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StorageDriver != StorageMemory {
		cfg.StorageDriver = StoragePostgres
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"storage", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"notifications_topic", cfg.NotificationsTopic,
	)
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
