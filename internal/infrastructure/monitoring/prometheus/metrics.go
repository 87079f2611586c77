package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics holds all application metrics for the royalty engine.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Royalty engine
	SubmissionsTotal       CounterVec
	ValidationFailures     CounterVec
	ValidationWarnings     CounterVec
	CalculationDuration    HistogramVec
	RoyaltyAmountCalculated HistogramVec
	StatusTransitionsTotal CounterVec
	PartialPaymentsTotal   CounterVec

	// Scheduler
	OverdueScansTotal    CounterVec
	OverdueRecordsFound  CounterVec
	DueSoonNotifications CounterVec

	// Import / export
	ImportRowsTotal  CounterVec
	ExportsTotal     CounterVec
	ExportDuration   HistogramVec

	// Infrastructure
	DBQueryDuration  HistogramVec
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	KafkaPublishTotal CounterVec

	// System health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultAmountBuckets       = []float64{100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000}
)

// NewAppMetrics registers all metrics and returns the AppMetrics struct.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Royalty engine
	m.SubmissionsTotal = collector.RegisterCounter("royalty_submissions_total", "Royalty record submissions", "mineral", "status")
	m.ValidationFailures = collector.RegisterCounter("royalty_validation_failures_total", "Validation errors blocking persistence", "field")
	m.ValidationWarnings = collector.RegisterCounter("royalty_validation_warnings_total", "Validation warnings raised", "field")
	m.CalculationDuration = collector.RegisterHistogram("royalty_calculation_duration_seconds", "Breakdown calculation duration", DefaultDBDurationBuckets, "method")
	m.RoyaltyAmountCalculated = collector.RegisterHistogram("royalty_amount_calculated", "Calculated royalty totals", DefaultAmountBuckets, "mineral")
	m.StatusTransitionsTotal = collector.RegisterCounter("royalty_status_transitions_total", "Record status transitions", "from", "to")
	m.PartialPaymentsTotal = collector.RegisterCounter("royalty_partial_payments_total", "Partial payments recorded", "mineral")

	// Scheduler
	m.OverdueScansTotal = collector.RegisterCounter("royalty_overdue_scans_total", "Overdue scan runs", "result")
	m.OverdueRecordsFound = collector.RegisterCounter("royalty_overdue_records_total", "Records flipped to overdue")
	m.DueSoonNotifications = collector.RegisterCounter("royalty_due_soon_notifications_total", "Payment-due-soon notifications sent")

	// Import / export
	m.ImportRowsTotal = collector.RegisterCounter("royalty_import_rows_total", "Bulk import rows processed", "result")
	m.ExportsTotal = collector.RegisterCounter("royalty_exports_total", "Export artifacts generated", "destination")
	m.ExportDuration = collector.RegisterHistogram("royalty_export_duration_seconds", "Export generation duration", DefaultHTTPDurationBuckets, "destination")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.KafkaPublishTotal = collector.RegisterCounter("kafka_publish_total", "Kafka messages published", "topic", "status")

	// System health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type", "severity")

	return m
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	status := fmt.Sprintf("%d", statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordSubmission(metrics *AppMetrics, mineral, status string) {
	metrics.SubmissionsTotal.WithLabelValues(mineral, status).Inc()
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error", "error").Inc()
	}
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordError(metrics *AppMetrics, component, errorType, severity string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType, severity).Inc()
}
