// Package config loads process configuration from the environment,
// with an optional .env file for development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	WALDir      string
	SnapshotDir string
	OutboxDir   string

	Admin string

	KafkaBrokers []string
	EventsTopic  string
	TicksTopic   string

	RedisAddr string

	SnapshotInterval   time.Duration
	MarketDataInterval time.Duration
	DepthLimit         int
}

// Load reads FREYR_* variables, falling back to defaults suitable for
// local development. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPAddr:           getString("FREYR_HTTP_ADDR", ":8080"),
		WALDir:             getString("FREYR_WAL_DIR", "./data/wal"),
		SnapshotDir:        getString("FREYR_SNAPSHOT_DIR", "./data/snapshot"),
		OutboxDir:          getString("FREYR_OUTBOX_DIR", "./data/outbox"),
		Admin:              getString("FREYR_ADMIN", "admin"),
		KafkaBrokers:       getList("FREYR_KAFKA_BROKERS", "localhost:9092"),
		EventsTopic:        getString("FREYR_EVENTS_TOPIC", "exchange.events"),
		TicksTopic:         getString("FREYR_TICKS_TOPIC", "exchange.ticks"),
		RedisAddr:          getString("FREYR_REDIS_ADDR", "localhost:6379"),
		SnapshotInterval:   getDuration("FREYR_SNAPSHOT_INTERVAL", time.Minute),
		MarketDataInterval: getDuration("FREYR_MARKETDATA_INTERVAL", time.Second),
		DepthLimit:         getInt("FREYR_DEPTH_LIMIT", 20),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getList(key, fallback string) []string {
	raw := getString(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
