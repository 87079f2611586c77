// Package config provides configuration loading, defaults, and validation for
// the royalty engine.
package config

import "time"

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "royalty"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"

	DefaultKafkaBroker       = "localhost:9092"
	DefaultAuditTopic        = "royalty.audit"
	DefaultNotificationTopic = "royalty.notifications"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "royalty-exports"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4

	DefaultBaseCurrency         = "SZL"
	DefaultPenaltyRate          = 0.02
	DefaultInterestRate         = 0.12
	DefaultConsistencyTolerance = 0.05
	DefaultMaxFuturePaymentDays = 365
	DefaultMaxProductionVolume  = 1_000_000
	DefaultMaxUnitPrice         = 10_000
	DefaultSmallScaleVolumeCap  = 10_000
	DefaultAuditTrailMax        = 1000
)

// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.  Fields set
// by the caller are left unchanged so explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "royalty"
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 10 * time.Minute
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.AuditTopic == "" {
		cfg.Kafka.AuditTopic = DefaultAuditTopic
	}
	if cfg.Kafka.NotificationTopic == "" {
		cfg.Kafka.NotificationTopic = DefaultNotificationTopic
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 24 * time.Hour
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.OverdueScanInterval == 0 {
		cfg.Worker.OverdueScanInterval = time.Hour
	}
	if cfg.Worker.DueSoonWindow == 0 {
		cfg.Worker.DueSoonWindow = 7 * 24 * time.Hour
	}
	if cfg.Worker.MetricsPort == 0 {
		cfg.Worker.MetricsPort = 9090
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	applyEngineDefaults(&cfg.Engine)
}

// applyEngineDefaults seeds the calculation ruleset with the statutory
// defaults used when a deployment provides no overrides.
func applyEngineDefaults(e *EngineConfig) {
	if e.BaseCurrency == "" {
		e.BaseCurrency = DefaultBaseCurrency
	}
	if len(e.ExchangeRates) == 0 {
		e.ExchangeRates = map[string]float64{
			"SZL": 1.0,
			"USD": 18.5,
			"EUR": 20.2,
			"ZAR": 1.1,
		}
	}
	if e.PenaltyRate == 0 {
		e.PenaltyRate = DefaultPenaltyRate
	}
	if e.InterestRate == 0 {
		e.InterestRate = DefaultInterestRate
	}
	if e.ConsistencyTolerance == 0 {
		e.ConsistencyTolerance = DefaultConsistencyTolerance
	}
	if e.MaxFuturePaymentDays == 0 {
		e.MaxFuturePaymentDays = DefaultMaxFuturePaymentDays
	}
	if e.MaxProductionVolume == 0 {
		e.MaxProductionVolume = DefaultMaxProductionVolume
	}
	if e.MaxUnitPrice == 0 {
		e.MaxUnitPrice = DefaultMaxUnitPrice
	}
	if e.SmallScaleVolumeCap == 0 {
		e.SmallScaleVolumeCap = DefaultSmallScaleVolumeCap
	}
	if len(e.TariffBands) == 0 {
		e.TariffBands = map[string]TariffBand{
			"Coal":     {Min: 20, Max: 50},
			"Iron Ore": {Min: 25, Max: 60},
			"Diamond":  {Min: 100, Max: 500},
			"Gold":     {Min: 200, Max: 800},
		}
	}
	if len(e.Minerals) == 0 {
		e.Minerals = []string{"Coal", "Iron Ore", "Quarried Stone", "Gravel", "Diamond", "Gold"}
	}
	if len(e.Entities) == 0 {
		e.Entities = []string{
			"Kwalini Quarry", "Maloma Colliery", "Mbabane Quarry",
			"Ngwenya Mine", "Sidvokodvo Quarry", "Small Scale Mining",
		}
	}
	if len(e.Currencies) == 0 {
		e.Currencies = []string{"SZL", "USD", "EUR", "ZAR"}
	}
	if e.AuditTrailMax == 0 {
		e.AuditTrailMax = DefaultAuditTrailMax
	}
}
