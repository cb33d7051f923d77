package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal       prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	RateLimitDropsTotal prometheus.Counter

	SourceErrors       *prometheus.CounterVec
	SourceLatency      *prometheus.HistogramVec
	NormalizationDrops *prometheus.CounterVec
	ClusterCount       prometheus.Histogram

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_requests_total",
			Help: "Total number of incoming search requests",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_cache_hits_total",
			Help: "Number of cache hits for aggregation results",
		}),
		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_ratelimit_drops_total",
			Help: "Requests dropped due to rate limiting",
		}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "source_errors_total",
			Help: "Terminal fetch failures per source",
		}, []string{"source"},
		),
		SourceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "source_fetch_duration_seconds",
				Help:    "Latency of one page fetch including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		NormalizationDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "normalization_drops_total",
			Help: "Raw records dropped during normalization",
		}, []string{"source"},
		),
		ClusterCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "result_clusters",
			Help:    "Clusters per aggregation result",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	p.MustRegister(
		m.RequestsTotal,
		m.CacheHitsTotal,
		m.RateLimitDropsTotal,
		m.SourceErrors,
		m.SourceLatency,
		m.NormalizationDrops,
		m.ClusterCount,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncRequests()       { m.RequestsTotal.Inc() }
func (m *Metrics) IncCacheHits()      { m.CacheHitsTotal.Inc() }
func (m *Metrics) IncRateLimitDrops() { m.RateLimitDropsTotal.Inc() }

func (m *Metrics) ObserveSourceLatency(source string, seconds float64) {
	m.SourceLatency.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) IncSourceFailure(source string) {
	m.SourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) IncNormalizationDrop(source string) {
	m.NormalizationDrops.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveClusterCount(n int) {
	m.ClusterCount.Observe(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
