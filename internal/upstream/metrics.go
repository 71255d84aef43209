package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// MetricUpstreamBreakerState is the breaker state gauge name.
const MetricUpstreamBreakerState = "upstream_breaker_state"

// Metrics exposes circuit breaker state per upstream:
// 0 closed, 1 half-open, 2 open.
type Metrics struct {
	state *prometheus.GaugeVec
}

// NewMetrics creates unregistered breaker metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricUpstreamBreakerState,
				Help: "Circuit breaker state per upstream (0=closed, 1=half-open, 2=open)",
			},
			[]string{"upstream"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.state)
}

// SetState records the current state of the named breaker.
func (m *Metrics) SetState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.state.WithLabelValues(name).Set(v)
}
