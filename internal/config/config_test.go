package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MAX_RECEIVE_COUNT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDriver != StoreMySQL {
		t.Errorf("expected mysql driver, got %s", cfg.StoreDriver)
	}
	if cfg.MaxReceiveCount != 3 {
		t.Errorf("expected max receive count 3, got %d", cfg.MaxReceiveCount)
	}
	if cfg.VisibilityTimeout != 30*time.Second {
		t.Errorf("expected 30s visibility timeout, got %v", cfg.VisibilityTimeout)
	}
}

func TestLoad_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", StorePostgres)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":       "dynamo",
		"MAX_RECEIVE_COUNT":  "zero",
		"VISIBILITY_TIMEOUT": "soon",
		"BATCH_SIZE":         "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}
