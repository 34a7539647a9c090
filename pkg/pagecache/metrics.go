package pagecache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tankobon"

// Metrics are the page cache's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	extractionsTotal        *prometheus.CounterVec
	extractionFailuresTotal prometheus.Counter
	extractionDuration      prometheus.Histogram
	cacheHitsTotal          prometheus.Counter
	evictionsTotal          *prometheus.CounterVec
	entries                 *prometheus.GaugeVec
}

// NewMetrics constructs and registers the cache metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "extractions_total",
			Help:      "Total number of successful chapter extractions by kind.",
		}, []string{"kind"}),
		extractionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "extraction_failures_total",
			Help:      "Total number of failed chapter extractions.",
		}),
		extractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of chapter extractions in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "cache_hits_total",
			Help:      "Total number of ensures served from an existing entry.",
		}),
		evictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "evictions_total",
			Help:      "Total number of entries removed by cleanup, by area.",
		}, []string{"area"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pagecache",
			Name:      "entries",
			Help:      "Current number of published entries, by area.",
		}, []string{"area"}),
	}

	reg.MustRegister(
		m.extractionsTotal,
		m.extractionFailuresTotal,
		m.extractionDuration,
		m.cacheHitsTotal,
		m.evictionsTotal,
		m.entries,
	)

	return m
}

func (m *Metrics) observeExtraction(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(kind).Inc()
	m.extractionDuration.Observe(d.Seconds())
}

func (m *Metrics) incExtractionFailures() {
	if m == nil {
		return
	}
	m.extractionFailuresTotal.Inc()
}

func (m *Metrics) incCacheHits() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) incEvictions(area string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(area).Inc()
}

func (m *Metrics) setEntries(area string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(area).Set(float64(n))
}
