package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "order-pipeline"
	ServiceVersion = "0.1.0"
)

const (
	StoreMemory   = "memory"
	StoreMySQL    = "mysql"
	StorePostgres = "postgres"
)

type Config struct {
	Env      string
	LogLevel string

	HTTPAddr string
	GRPCAddr string

	StoreDriver string
	MySQLDSN    string
	PostgresDSN string

	RedisAddr         string
	QueueStream       string
	DeadLetterStream  string
	ConsumerGroup     string
	MaxReceiveCount   int
	VisibilityTimeout time.Duration
	BatchSize         int
	WorkerCount       int
	DispatchParallel  int

	KafkaBrokers []string
	AlertTopic   string

	SMTPAddr     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	LowStockThreshold int

	OtelEndpoint   string
	OtelURLPath    string
	OtelLogsPath   string
	OtelAuthHeader string
	OtelInsecure   bool
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getenvDefault("ENV", "dev"),
		LogLevel: getenvDefault("LOG_LEVEL", "info"),

		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),
		GRPCAddr: getenvDefault("GRPC_ADDR", ":50051"),

		StoreDriver: getenvDefault("STORE_DRIVER", StoreMySQL),
		MySQLDSN:    getenvDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/orderpipeline?parseTime=true"),
		PostgresDSN: os.Getenv("DATABASE_URL"),

		RedisAddr:        getenvDefault("REDIS_ADDR", "localhost:6379"),
		QueueStream:      getenvDefault("ORDER_QUEUE_STREAM", "orders:confirmation"),
		DeadLetterStream: getenvDefault("ORDER_DLQ_STREAM", "orders:confirmation:dlq"),
		ConsumerGroup:    getenvDefault("CONSUMER_GROUP", "confirmation-dispatcher"),

		AlertTopic: getenvDefault("ALERT_TOPIC", "order-alerts"),

		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		SMTPFrom:     getenvDefault("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelURLPath:    os.Getenv("OTEL_URL_PATH"),
		OtelLogsPath:   os.Getenv("OTEL_LOGS_URL_PATH"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	if cfg.MaxReceiveCount, err = getenvInt("MAX_RECEIVE_COUNT", 3); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = getenvInt("BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = getenvInt("WORKER_COUNT", 2); err != nil {
		return nil, err
	}
	if cfg.DispatchParallel, err = getenvInt("DISPATCH_PARALLELISM", 8); err != nil {
		return nil, err
	}
	if cfg.LowStockThreshold, err = getenvInt("LOW_STOCK_THRESHOLD", 10); err != nil {
		return nil, err
	}
	if cfg.VisibilityTimeout, err = getenvDuration("VISIBILITY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.OtelInsecure, err = getenvBool("OTEL_INSECURE", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreMySQL:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxReceiveCount < 1 {
		return fmt.Errorf("MAX_RECEIVE_COUNT must be at least 1")
	}
	if c.BatchSize < 1 || c.WorkerCount < 1 || c.DispatchParallel < 1 {
		return fmt.Errorf("BATCH_SIZE, WORKER_COUNT and DISPATCH_PARALLELISM must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
