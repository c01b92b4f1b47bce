package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/order-pipeline/internal/adapter/handler"
	"github.com/rl1809/order-pipeline/internal/adapter/notify"
	"github.com/rl1809/order-pipeline/internal/adapter/queue"
	"github.com/rl1809/order-pipeline/internal/adapter/storage"
	"github.com/rl1809/order-pipeline/internal/config"
	"github.com/rl1809/order-pipeline/internal/core/service"
	"github.com/rl1809/order-pipeline/internal/observability"
	"github.com/rl1809/order-pipeline/internal/port"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = 15 * time.Second
	queueBlock      = 5 * time.Second
)

type stores struct {
	products port.ProductRepository
	orders   port.OrderRepository
	probe    handler.Probe
	close    func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := observability.NewLogger(config.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := observability.TracingConfig{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		Endpoint:       cfg.OtelEndpoint,
		URLPath:        cfg.OtelURLPath,
		LogsURLPath:    cfg.OtelLogsPath,
		AuthHeader:     cfg.OtelAuthHeader,
		Insecure:       cfg.OtelInsecure,
	}
	shutdownTracing, err := observability.SetupTracing(ctx, otelCfg)
	if err != nil {
		logger.Fatal("tracing_setup_failed", zap.Error(err))
	}
	shutdownLogging, err := observability.SetupLogging(ctx, otelCfg)
	if err != nil {
		logger.Fatal("log_export_setup_failed", zap.Error(err))
	}
	if cfg.OtelEndpoint != "" {
		logger = observability.WithOTelBridge(logger, config.ServiceName)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_init_failed", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()
	logger.Info("store_ready", zap.String("driver", cfg.StoreDriver))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis_connect_failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	logger.Info("redis_ready", zap.String("addr", cfg.RedisAddr))

	hostname, _ := os.Hostname()
	consumerName := hostname + "-" + uuid.NewString()[:8]

	orderQueue := queue.NewRedisStreamQueue(rdb, queue.StreamConfig{
		Stream:            cfg.QueueStream,
		Group:             cfg.ConsumerGroup,
		Consumer:          consumerName,
		DeadLetterStream:  cfg.DeadLetterStream,
		MaxReceiveCount:   cfg.MaxReceiveCount,
		VisibilityTimeout: cfg.VisibilityTimeout,
		Block:             queueBlock,
	}, logger)
	deadLetterQueue := queue.NewRedisStreamQueue(rdb, queue.StreamConfig{
		Stream:            cfg.DeadLetterStream,
		Group:             cfg.ConsumerGroup + "-dlq",
		Consumer:          consumerName,
		VisibilityTimeout: cfg.VisibilityTimeout,
		Block:             queueBlock,
	}, logger)
	for _, q := range []*queue.RedisStreamQueue{orderQueue, deadLetterQueue} {
		if err := q.EnsureGroup(ctx); err != nil {
			logger.Fatal("queue_group_init_failed", zap.Error(err))
		}
	}

	notifier, alerter, closeNotify := buildNotifiers(cfg, logger)
	defer closeNotify()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithLowStockThreshold(cfg.LowStockThreshold),
		service.WithParallelism(cfg.DispatchParallel),
		service.WithIdempotency(storage.NewRedisIdempotencyGuard(rdb)),
	}
	orderService := service.NewOrderService(st.products, st.orders, orderQueue, opts...)
	productService := service.NewProductService(st.products, opts...)
	confirmationService := service.NewConfirmationService(st.orders, notifier, alerter, opts...)
	deadLetterService := service.NewDeadLetterService(alerter, opts...)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		c := queue.NewConsumer("confirmation", orderQueue, confirmationService.ProcessBatch, cfg.BatchSize, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
	}
	dlq := queue.NewConsumer("dead-letter", deadLetterQueue, deadLetterService.Drain, cfg.BatchSize, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		dlq.Run(ctx)
	}()
	logger.Info("consumers_started", zap.Int("workers", cfg.WorkerCount), zap.String("consumer", consumerName))

	redisProbe := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	grpcHandler := handler.NewGRPCHandler(map[string][]handler.Probe{
		handler.HealthOrderPlacement: {st.probe, redisProbe},
		handler.HealthConfirmation:   {st.probe, redisProbe},
	}, logger)
	grpcServer := grpc.NewServer()
	grpcHandler.Register(grpcServer)
	go grpcHandler.Watch(ctx, healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("grpc_listen_failed", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		logger.Info("grpc_server_listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc_server_error", zap.Error(err))
		}
	}()

	router := handler.NewHTTPHandler(orderService, productService, logger).Routes()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http_server_listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	wg.Wait()
	logger.Info("consumers_stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing_shutdown_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
	if err := shutdownLogging(shutdownCtx); err != nil {
		logger.Warn("log_export_shutdown_failed", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return &stores{
			products: storage.NewMemoryProductRepository(logger),
			orders:   storage.NewMemoryOrderRepository(logger),
			probe:    func(context.Context) error { return nil },
			close:    func() {},
		}, nil

	case config.StorePostgres:
		pool, err := storage.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := storage.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			products: storage.NewPostgresProductRepository(pool, logger),
			orders:   storage.NewPostgresOrderRepository(pool, logger),
			probe:    pool.Ping,
			close:    pool.Close,
		}, nil

	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, err
		}
		if err := storage.MigrateMySQL(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		return &stores{
			products: storage.NewMySQLProductRepository(db, logger),
			orders:   storage.NewMySQLOrderRepository(db, logger),
			probe:    db.PingContext,
			close:    func() { db.Close() },
		}, nil
	}
}

// buildNotifiers falls back to log-only channels when SMTP or Kafka are not configured.
func buildNotifiers(cfg *config.Config, logger *zap.Logger) (port.Notifier, port.Alerter, func()) {
	var notifier port.Notifier = notify.NewLogNotifier(logger)
	if cfg.SMTPAddr != "" {
		smtpNotifier, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}, logger)
		if err != nil {
			logger.Fatal("smtp_init_failed", zap.Error(err))
		}
		notifier = smtpNotifier
	}

	if len(cfg.KafkaBrokers) == 0 {
		return notifier, notify.NewLogAlerter(logger), func() {}
	}
	kafkaAlerter, err := notify.NewKafkaAlerter(cfg.KafkaBrokers, cfg.AlertTopic, config.ServiceName, logger)
	if err != nil {
		logger.Fatal("kafka_init_failed", zap.Error(err))
	}
	return notifier, kafkaAlerter, func() {
		if err := kafkaAlerter.Close(); err != nil {
			logger.Warn("kafka_close_failed", zap.Error(err))
		}
	}
}
