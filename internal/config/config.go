// Package config defines all configuration structures for the royalty engine.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer parameters.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	AuditTopic        string   `mapstructure:"audit_topic"`
	NotificationTopic string   `mapstructure:"notification_topic"`
	ProducerRetries   int      `mapstructure:"producer_retries"`
	BatchSize         int      `mapstructure:"batch_size"`
	RequiredAcks      int      `mapstructure:"required_acks"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	OverdueScanInterval  time.Duration `mapstructure:"overdue_scan_interval"`
	DueSoonWindow        time.Duration `mapstructure:"due_soon_window"`
	Concurrency          int           `mapstructure:"concurrency"`
	MetricsPort          int           `mapstructure:"metrics_port"`
	ShutdownGracePeriod  time.Duration `mapstructure:"shutdown_grace_period"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// TariffBand is the acceptable tariff range for a mineral.
type TariffBand struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// EngineConfig holds the calculation and validation ruleset.  These values are
// hot-reloadable through config.Watch so that rate changes take effect without
// a restart.
type EngineConfig struct {
	// BaseCurrency is the currency of record.  Amounts in other currencies are
	// normalized against it.
	BaseCurrency string `mapstructure:"base_currency"`

	// ExchangeRates maps ISO currency codes to the base-currency rate.
	ExchangeRates map[string]float64 `mapstructure:"exchange_rates"`

	// PenaltyRate is the base late-payment penalty fraction per band multiplier.
	PenaltyRate float64 `mapstructure:"penalty_rate"`

	// InterestRate is the annual rate compounded daily on overdue amounts.
	InterestRate float64 `mapstructure:"interest_rate"`

	// ConsistencyTolerance is the relative deviation allowed between a stored
	// total and its recomputed value before an integrity warning fires.
	ConsistencyTolerance float64 `mapstructure:"consistency_tolerance"`

	// MaxFuturePaymentDays bounds how far in the future a payment date may lie.
	MaxFuturePaymentDays int `mapstructure:"max_future_payment_days"`

	MaxProductionVolume float64 `mapstructure:"max_production_volume"`
	MaxUnitPrice        float64 `mapstructure:"max_unit_price"`

	// SmallScaleVolumeCap caps reported volume for small-scale operators.
	SmallScaleVolumeCap float64 `mapstructure:"small_scale_volume_cap"`

	// TariffBands maps mineral names to plausible tariff ranges.
	TariffBands map[string]TariffBand `mapstructure:"tariff_bands"`

	// Minerals and Entities are the allow-lists checked during field validation.
	Minerals []string `mapstructure:"minerals"`
	Entities []string `mapstructure:"entities"`

	// Currencies accepted on submitted records.
	Currencies []string `mapstructure:"currencies"`

	// AuditTrailMax bounds the in-memory audit trail; oldest entries are evicted.
	AuditTrailMax int `mapstructure:"audit_trail_max"`
}

// Config is the root configuration structure for the engine.  Every
// infrastructure component and application service reads its settings from the
// relevant sub-struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return c.Engine.Validate()
}

// Validate checks the engine ruleset for values that would corrupt
// calculations.
func (e *EngineConfig) Validate() error {
	if e.BaseCurrency == "" {
		return fmt.Errorf("config: engine.base_currency is required")
	}
	if rate, ok := e.ExchangeRates[e.BaseCurrency]; !ok || rate != 1.0 {
		return fmt.Errorf("config: engine.exchange_rates must map the base currency %q to 1.0", e.BaseCurrency)
	}
	for code, rate := range e.ExchangeRates {
		if rate <= 0 {
			return fmt.Errorf("config: engine.exchange_rates[%s] must be positive, got %v", code, rate)
		}
	}
	if e.PenaltyRate < 0 || e.PenaltyRate > 1 {
		return fmt.Errorf("config: engine.penalty_rate %v is out of range [0, 1]", e.PenaltyRate)
	}
	if e.InterestRate < 0 || e.InterestRate > 1 {
		return fmt.Errorf("config: engine.interest_rate %v is out of range [0, 1]", e.InterestRate)
	}
	if e.ConsistencyTolerance <= 0 || e.ConsistencyTolerance >= 1 {
		return fmt.Errorf("config: engine.consistency_tolerance %v is out of range (0, 1)", e.ConsistencyTolerance)
	}
	if e.AuditTrailMax < 1 {
		return fmt.Errorf("config: engine.audit_trail_max must be >= 1, got %d", e.AuditTrailMax)
	}
	for mineral, band := range e.TariffBands {
		if band.Min < 0 || band.Max < band.Min {
			return fmt.Errorf("config: engine.tariff_bands[%s] has invalid range [%v, %v]", mineral, band.Min, band.Max)
		}
	}
	return nil
}
