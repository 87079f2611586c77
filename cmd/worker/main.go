// The worker command runs the royalty engine background jobs: the
// periodic overdue scan, payment-due-soon notification publishing, and
// the notification dispatcher that drains the Kafka notification topic.
// A Redis lock keeps the scan single-flight across replicas.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/minegov/royalty-engine/internal/application/royalty"
	"github.com/minegov/royalty-engine/internal/config"
	"github.com/minegov/royalty-engine/internal/domain/audit"
	"github.com/minegov/royalty-engine/internal/domain/pricing"
	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres/repositories"
	"github.com/minegov/royalty-engine/internal/infrastructure/database/redis"
	"github.com/minegov/royalty-engine/internal/infrastructure/messaging/kafka"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
)

const (
	defaultConfigPath = "configs/config.yaml"
	scanLockName      = "worker:overdue-scan"
	consumerGroup     = "royalty-worker"
)

// Populated at build time through -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logConfigFrom(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting royalty engine worker",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.Duration("scan_interval", cfg.Worker.OverdueScanInterval),
		logging.Duration("due_soon_window", cfg.Worker.DueSoonWindow),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	conn, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewRedisCache(redisClient, logger)
	locks := redis.NewLockFactory(redisClient, logger)

	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()
	auditPublisher := kafka.NewAuditPublisher(producer, cfg.Kafka.AuditTopic, logger)
	notifier := kafka.NewNotifier(producer, cfg.Kafka.NotificationTopic, logger)

	// Topic creation is idempotent; the first replica up wins.
	if topics, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger); err != nil {
		logger.Warn("kafka topic manager unavailable", logging.Err(err))
	} else {
		if err := topics.EnsureDefaultTopics(context.Background()); err != nil {
			logger.Warn("topic provisioning failed", logging.Err(err))
		}
		topics.Close()
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "royalty",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	records := repositories.NewPostgresRoyaltyRepo(conn, logger)
	contracts := repositories.NewPostgresContractRepo(conn, logger)
	auditRepo := repositories.NewPostgresAuditRepo(conn, logger)

	rules := app.RulesetFromConfig(cfg.Engine)
	calc := domain.NewCalculator(pricing.NewRegistry(), rules)
	validator := domain.NewValidator(records, calc, rules)
	engine := domain.NewService(records, contracts, validator, calc,
		audit.FanOut{auditRepo, auditPublisher}, logger, nil)

	recordSvc := app.NewService(engine, cache, notifier, metrics, logger)
	scheduler := app.NewScheduler(recordSvc, notifier, metrics, logger, app.SchedulerConfig{
		ScanInterval:  cfg.Worker.OverdueScanInterval,
		DueSoonWindow: cfg.Worker.DueSoonWindow,
		Concurrency:   cfg.Worker.Concurrency,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scan loop. Only the replica holding the lock runs a tick.
	scanLock := locks.NewMutex(scanLockName,
		redis.WithLockTTL(5*time.Minute),
		redis.WithWatchdog(true),
	)
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		runScanLoop(ctx, scheduler, scanLock, cfg.Worker.OverdueScanInterval, logger)
	}()

	// Notification dispatcher.
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: consumerGroup,
		Topics:  []string{notificationTopic(cfg)},
		RetryConfig: kafka.RetryConfig{
			MaxRetries:      3,
			RetryBackoff:    time.Second,
			DeadLetterTopic: notificationTopic(cfg) + ".dlq",
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	if err := consumer.Subscribe(notificationTopic(cfg), dispatchNotification(logger)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("consumer start: %w", err)
	}

	// Probe and metrics endpoint.
	probes := chi.NewRouter()
	probes.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	probes.Method(http.MethodGet, "/metrics", collector.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler: probes,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", logging.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	cancel()

	grace := cfg.Worker.ShutdownGracePeriod
	if grace <= 0 {
		grace = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), grace)
	defer shutdownCancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics endpoint shutdown", logging.Err(err))
	}
	if err := consumer.Close(); err != nil {
		logger.Warn("consumer close", logging.Err(err))
	}
	select {
	case <-scanDone:
	case <-shutdownCtx.Done():
		logger.Warn("scan loop did not stop within the grace period")
	}

	logger.Info("worker stopped")
	return nil
}

// runScanLoop ticks the scheduler on the configured interval while holding
// the distributed lock. A replica that cannot take the lock skips the tick;
// another replica is scanning.
func runScanLoop(ctx context.Context, scheduler *app.Scheduler, lock redis.DistributedLock, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := func() {
		ok, err := lock.TryLock(ctx)
		if err != nil {
			logger.Error("scan lock acquisition failed", logging.Err(err))
			return
		}
		if !ok {
			logger.Debug("scan lock held elsewhere, skipping tick")
			return
		}
		defer func() {
			if err := lock.Unlock(ctx); err != nil {
				logger.Warn("scan lock release failed", logging.Err(err))
			}
		}()
		scheduler.Tick(ctx)
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// dispatchNotification drains the notification topic. Delivery channels
// (dashboard feed, email relay) hang off this handler; for now every
// notification is surfaced in the worker log.
func dispatchNotification(logger logging.Logger) kafka.MessageHandler {
	log := logger.Named("worker.notifications")
	return func(_ context.Context, msg *kafka.Message) error {
		env, err := kafka.MessageToEventEnvelope(msg)
		if err != nil {
			return err
		}
		var note kafka.NotificationEventPayload
		if err := env.DecodePayload(&note); err != nil {
			return err
		}
		log.Info("notification dispatched",
			logging.String("type", note.Type),
			logging.String("record_id", note.RecordID),
			logging.String("entity", note.Entity),
			logging.String("message", note.Message),
		)
		return nil
	}
}

func notificationTopic(cfg *config.Config) string {
	if cfg.Kafka.NotificationTopic != "" {
		return cfg.Kafka.NotificationTopic
	}
	return kafka.TopicNotification
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func logConfigFrom(cfg config.LogConfig) logging.LogConfig {
	out := cfg.Output
	if out == "" {
		out = "stdout"
	}
	return logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: []string{out},
	}
}
