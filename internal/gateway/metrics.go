package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the gateway's Prometheus collectors.
type Metrics struct {
	Verdicts             *prometheus.CounterVec
	VerificationFailures *prometheus.CounterVec
	Duration             prometheus.Histogram
	FailClosed           prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalguard",
			Name:      "verdicts_total",
			Help:      "Access verdicts by kind and route class.",
		}, []string{"verdict", "class"}),
		VerificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalguard",
			Name:      "verification_failures_total",
			Help:      "Credentials that resolved to an absent principal, by reason.",
		}, []string{"reason"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portalguard",
			Name:      "decision_duration_seconds",
			Help:      "Time spent verifying the principal and deciding, per request.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		FailClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "portalguard",
			Name:      "fail_closed_total",
			Help:      "Requests denied because orchestration failed unexpectedly.",
		}),
	}
}

func (m *Metrics) verdict(kind, class string) {
	if m == nil {
		return
	}
	if class == "" {
		class = "none"
	}
	m.Verdicts.WithLabelValues(kind, class).Inc()
}

func (m *Metrics) verificationFailure(reason string) {
	if m == nil {
		return
	}
	m.VerificationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) failClosed() {
	if m == nil {
		return
	}
	m.FailClosed.Inc()
}
