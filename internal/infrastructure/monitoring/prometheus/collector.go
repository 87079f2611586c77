// Package prometheus exposes the engine's metrics through a private
// registry. Components register vectors through the MetricsCollector
// interface and never touch client_golang types directly, so a failed
// registration degrades to a noop series instead of a startup panic.
package prometheus

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// MetricsCollector registers metric vectors under the configured
// namespace/subsystem and serves the scrape endpoint.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
	MustRegister(collectors ...prometheus.Collector)
	Unregister(collector prometheus.Collector) bool
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
	Sub(delta float64)
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type Histogram interface {
	Observe(value float64)
}

// CollectorConfig configures the registry. Namespace is required; every
// registered metric is prefixed namespace_subsystem_.
type CollectorConfig struct {
	Namespace               string
	Subsystem               string
	EnableProcessMetrics    bool
	EnableGoMetrics         bool
	DefaultHistogramBuckets []float64
	ConstLabels             map[string]string
}

type collector struct {
	registry *prometheus.Registry
	cfg      CollectorConfig
	logger   logging.Logger

	mu   sync.Mutex
	vecs map[string]prometheus.Collector
}

// NewMetricsCollector builds a collector around a fresh registry, optionally
// seeded with the process and Go runtime collectors.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.New(errors.CodeValidation, "metrics namespace is required")
	}
	if cfg.DefaultHistogramBuckets == nil {
		cfg.DefaultHistogramBuckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{
			Namespace: cfg.Namespace,
		}))
	}
	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}

	return &collector{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		vecs:     make(map[string]prometheus.Collector),
	}, nil
}

func (c *collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (c *collector) MustRegister(collectors ...prometheus.Collector) {
	c.registry.MustRegister(collectors...)
}

func (c *collector) Unregister(col prometheus.Collector) bool {
	return c.registry.Unregister(col)
}

// register stores the vector under its fully qualified name. A repeat
// registration of the same name hands back the original vector so every
// caller feeds the same series.
func (c *collector) register(name string, vec prometheus.Collector) (prometheus.Collector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fqName := prometheus.BuildFQName(c.cfg.Namespace, c.cfg.Subsystem, name)
	if existing, ok := c.vecs[fqName]; ok {
		return existing, nil
	}
	if err := c.registry.Register(vec); err != nil {
		return nil, err
	}
	c.vecs[fqName] = vec
	return vec, nil
}

func (c *collector) opts(name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
	}
}

func (c *collector) RegisterCounter(name, help string, labels ...string) CounterVec {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts(c.opts(name, help)), labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("counter registration failed",
			logging.String("name", name), logging.Err(err))
		return noopCounterVec{}
	}
	existing, ok := registered.(*prometheus.CounterVec)
	if !ok {
		c.logger.Warn("metric already registered with a different type",
			logging.String("name", name), logging.String("want", "counter"))
		return noopCounterVec{}
	}
	return counterVec{existing}
}

func (c *collector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts(c.opts(name, help)), labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("gauge registration failed",
			logging.String("name", name), logging.Err(err))
		return noopGaugeVec{}
	}
	existing, ok := registered.(*prometheus.GaugeVec)
	if !ok {
		c.logger.Warn("metric already registered with a different type",
			logging.String("name", name), logging.String("want", "gauge"))
		return noopGaugeVec{}
	}
	return gaugeVec{existing}
}

func (c *collector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = c.cfg.DefaultHistogramBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.cfg.Namespace,
		Subsystem:   c.cfg.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.cfg.ConstLabels,
		Buckets:     buckets,
	}, labels)

	registered, err := c.register(name, vec)
	if err != nil {
		c.logger.Error("histogram registration failed",
			logging.String("name", name), logging.Err(err))
		return noopHistogramVec{}
	}
	existing, ok := registered.(*prometheus.HistogramVec)
	if !ok {
		c.logger.Warn("metric already registered with a different type",
			logging.String("name", name), logging.String("want", "histogram"))
		return noopHistogramVec{}
	}
	return histogramVec{existing}
}

// Live wrappers.

type counterVec struct{ vec *prometheus.CounterVec }

func (v counterVec) WithLabelValues(lvs ...string) Counter { return v.vec.WithLabelValues(lvs...) }

type gaugeVec struct{ vec *prometheus.GaugeVec }

func (v gaugeVec) WithLabelValues(lvs ...string) Gauge { return v.vec.WithLabelValues(lvs...) }

type histogramVec struct{ vec *prometheus.HistogramVec }

func (v histogramVec) WithLabelValues(lvs ...string) Histogram {
	return v.vec.WithLabelValues(lvs...)
}

// Noop fallbacks handed out when registration fails.

type noopCounterVec struct{}

func (noopCounterVec) WithLabelValues(...string) Counter { return noopCounter{} }

type noopCounter struct{}

func (noopCounter) Inc()        {}
func (noopCounter) Add(float64) {}

type noopGaugeVec struct{}

func (noopGaugeVec) WithLabelValues(...string) Gauge { return noopGauge{} }

type noopGauge struct{}

func (noopGauge) Set(float64) {}
func (noopGauge) Inc()        {}
func (noopGauge) Dec()        {}
func (noopGauge) Add(float64) {}
func (noopGauge) Sub(float64) {}

type noopHistogramVec struct{}

func (noopHistogramVec) WithLabelValues(...string) Histogram { return noopHistogram{} }

type noopHistogram struct{}

func (noopHistogram) Observe(float64) {}

// Timer observes elapsed seconds into a histogram.
type Timer struct {
	histogram Histogram
	start     time.Time
}

func NewTimer(histogram Histogram) *Timer {
	return &Timer{histogram: histogram, start: time.Now()}
}

func (t *Timer) ObserveDuration() {
	if t.histogram == nil {
		return
	}
	t.histogram.Observe(time.Since(t.start).Seconds())
}
