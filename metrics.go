package sqlload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBatches       = "batches_total"
	MetricBatchKeys     = "batch_keys"
	MetricBatchFailures = "batch_failures_total"
	MetricCacheHits     = "cache_hits_total"
)

// Metrics records batch activity for one or more sessions
// as Prometheus metrics. It is safe for concurrent use.
type Metrics struct {
	batches   *prometheus.CounterVec
	keys      *prometheus.HistogramVec
	failures  *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
}

// NewMetrics creates metrics and registers them with reg.
// If reg is nil the metrics are not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlload",
				Name:      MetricBatches,
				Help:      "Number of batches dispatched to the adapter.",
			},
			[]string{"batch"},
		),
		keys: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sqlload",
				Name:      MetricBatchKeys,
				Help:      "Number of keys in each dispatched batch.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"batch"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlload",
				Name:      MetricBatchFailures,
				Help:      "Number of batches that failed.",
			},
			[]string{"batch"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlload",
				Name:      MetricCacheHits,
				Help:      "Number of requests served from the session cache.",
			},
			[]string{"batch"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.batches, m.keys, m.failures, m.cacheHits)
	}
	return m
}

// CacheHit records a request served from the cache.
func (m *Metrics) CacheHit(batch string) {
	m.cacheHits.WithLabelValues(batch).Inc()
}

// Dispatched records a batch being sent to the adapter.
func (m *Metrics) Dispatched(batch string, keys int) {
	m.batches.WithLabelValues(batch).Inc()
	m.keys.WithLabelValues(batch).Observe(float64(keys))
}

// Settled records the outcome of a batch.
func (m *Metrics) Settled(batch string, keys int, err error) {
	if err != nil {
		m.failures.WithLabelValues(batch).Inc()
	}
}
