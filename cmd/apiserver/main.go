// The apiserver command runs the royalty engine REST API: record
// submission and lifecycle, contract management, CSV import/export,
// and reporting, backed by PostgreSQL, Redis, Kafka, and MinIO.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/minegov/royalty-engine/internal/application/reporting"
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
	"github.com/minegov/royalty-engine/internal/infrastructure/storage/minio"
	httpserver "github.com/minegov/royalty-engine/internal/interfaces/http"
	"github.com/minegov/royalty-engine/internal/interfaces/http/handlers"
	"github.com/minegov/royalty-engine/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

// Populated at build time through -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, watchable, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logConfigFrom(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("starting royalty engine API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.Int("port", cfg.Server.Port),
	)

	if err := run(cfg, watchable, *configPath, logger); err != nil {
		logger.Error("apiserver failed", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, watchable bool, configPath string, logger logging.Logger) error {
	// Infrastructure.
	conn, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer conn.Close()

	if cfg.Database.MigrationPath != "" {
		if err := conn.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	var cacheOpts []redis.CacheOption
	if cfg.Redis.KeyPrefix != "" {
		cacheOpts = append(cacheOpts, redis.WithPrefix(cfg.Redis.KeyPrefix))
	}
	if cfg.Redis.DefaultTTL > 0 {
		cacheOpts = append(cacheOpts, redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
	}
	cache := redis.NewRedisCache(redisClient, logger, cacheOpts...)

	producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()
	auditPublisher := kafka.NewAuditPublisher(producer, cfg.Kafka.AuditTopic, logger)
	notifier := kafka.NewNotifier(producer, cfg.Kafka.NotificationTopic, logger)

	minioClient, err := minio.NewClient(cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	store := minio.NewArtifactStore(minioClient, logger)

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "royalty",
		Subsystem:            "api",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	// Domain engine.
	records := repositories.NewPostgresRoyaltyRepo(conn, logger)
	contracts := repositories.NewPostgresContractRepo(conn, logger)
	auditRepo := repositories.NewPostgresAuditRepo(conn, logger)
	trail := audit.NewTrail(cfg.Engine.AuditTrailMax)

	rules := app.RulesetFromConfig(cfg.Engine)
	calc := domain.NewCalculator(pricing.NewRegistry(), rules)
	validator := domain.NewValidator(records, calc, rules)
	engine := domain.NewService(records, contracts, validator, calc,
		audit.FanOut{trail, auditRepo, auditPublisher}, logger, nil)

	// Application services.
	recordSvc := app.NewService(engine, cache, notifier, metrics, logger)
	importSvc := app.NewImportService(recordSvc, metrics, logger)
	exportSvc := app.NewExportService(recordSvc, store, metrics, logger)
	reportSvc := reporting.NewService(records, logger, nil)

	// Tariff and validation rules follow the config file without a restart.
	if watchable {
		config.Watch(configPath, func(next *config.Config) {
			engine.Reload(app.RulesetFromConfig(next.Engine))
			logger.Info("engine ruleset reloaded",
				logging.String("config", configPath))
		})
	}

	// HTTP interface.
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	defer rateLimiter.Close()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Royalty:     handlers.NewRoyaltyHandler(recordSvc, importSvc, exportSvc, logger),
		Contracts:   handlers.NewContractHandler(contracts, logger),
		Reports:     handlers.NewReportHandler(reportSvc, logger),
		Health:      handlers.NewHealthHandler(Version, &postgresHealthAdapter{conn}, &redisHealthAdapter{redisClient}),
		Logger:      logger,
		Metrics:     metrics,
		MetricsView: collector.Handler(),
		RateLimiter: rateLimiter,
		CORS:        middleware.DefaultCORSConfig(),
		Logging:     middleware.DefaultLoggingConfig(),
	})

	server := httpserver.NewServer(cfg.Server, router, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	if err := server.Stop(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("apiserver stopped")
	return nil
}

// loadConfig reads the YAML file at path, falling back to environment-only
// configuration when the file does not exist. The second return reports
// whether a file is present to watch for hot reloads.
func loadConfig(path string) (*config.Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := config.Load(path)
		return cfg, err == nil, err
	}
	cfg, err := config.LoadFromEnv()
	return cfg, false, err
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
