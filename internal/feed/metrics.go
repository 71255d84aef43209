package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricFeedRequestsTotal       = "feed_requests_total"
	MetricFeedRankDuration        = "feed_rank_duration_seconds"
	MetricFeedCandidatePoolSize   = "feed_candidate_pool_size"
	MetricFeedFallbackMergedTotal = "feed_fallback_merged_total"
)

// Outcome label values for feed_requests_total.
const (
	OutcomeSuccess         = "success"
	OutcomeViewerNotFound  = "viewer_not_found"
	OutcomeInvalidPage     = "invalid_page"
	OutcomeCancelled       = "cancelled"
	OutcomeUpstreamFailure = "upstream_failure"
)

// Metrics contains Prometheus metrics for feed assembly.
// All operations are thread-safe.
type Metrics struct {
	requestsTotal       *prometheus.CounterVec
	rankDuration        prometheus.Histogram
	candidatePoolSize   prometheus.Histogram
	fallbackMergedTotal prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFeedRequestsTotal,
				Help: "Total number of feed requests by outcome",
			},
			[]string{"outcome"},
		),
		rankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedRankDuration,
			Help:    "Histogram of feed assembly duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		candidatePoolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFeedCandidatePoolSize,
			Help:    "Number of candidates scored per feed request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		fallbackMergedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFeedFallbackMergedTotal,
			Help: "Total number of feed requests that merged the fallback pool",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRequests increments the request counter for an outcome.
func (m *Metrics) IncRequests(outcome string) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRankDuration records a feed assembly duration sample.
func (m *Metrics) ObserveRankDuration(seconds float64) {
	m.rankDuration.Observe(seconds)
}

// ObserveCandidatePoolSize records how many candidates were scored.
func (m *Metrics) ObserveCandidatePoolSize(n int) {
	m.candidatePoolSize.Observe(float64(n))
}

// IncFallbackMerged increments the fallback merge counter.
func (m *Metrics) IncFallbackMerged() {
	m.fallbackMergedTotal.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.rankDuration,
		m.candidatePoolSize,
		m.fallbackMergedTotal,
	}
}
