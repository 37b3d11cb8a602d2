package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	SessionTTL         time.Duration
	PollInterval       time.Duration
	PollBatchSize      int
	OutboxRetention    time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	OTLPEndpoint       string
	OTLPInsecure       bool
	TraceSampleRatio   float64
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		SessionTTL:         readDurationSeconds("SESSION_TTL_SECONDS", 8*60*60),
		PollInterval:       readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1),
		PollBatchSize:      readInt("OUTBOX_POLL_BATCH_SIZE", 100),
		OutboxRetention:    readDurationSeconds("OUTBOX_RETENTION_SECONDS", 24*60*60),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:       os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		TraceSampleRatio:   readFloat("TRACE_SAMPLE_RATIO", 1),
	}
}

func readFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
