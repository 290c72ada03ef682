package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.SnapshotInterval != time.Minute {
		t.Fatalf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("FREYR_HTTP_ADDR", ":9999")
	t.Setenv("FREYR_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FREYR_DEPTH_LIMIT", "5")
	t.Setenv("FREYR_SNAPSHOT_INTERVAL", "30s")

	cfg := Load()
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.DepthLimit != 5 {
		t.Fatalf("DepthLimit = %d", cfg.DepthLimit)
	}
	if cfg.SnapshotInterval != 30*time.Second {
		t.Fatalf("SnapshotInterval = %v", cfg.SnapshotInterval)
	}
}
