package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments model calls. A nil *Metrics is a no-op.
type Metrics struct {
	calls   *prometheus.CounterVec
	callDur prometheus.Histogram
}

// NewMetrics creates and registers model call metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewd_llm_calls_total",
			Help: "Model calls, labeled by outcome.",
		}, []string{"outcome"}),
		callDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reviewd_llm_call_duration_seconds",
			Help:    "Model call duration in seconds, including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	reg.MustRegister(m.calls, m.callDur)
	return m
}

// CallObserved records one completed model call.
func (m *Metrics) CallObserved(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.calls.WithLabelValues(outcome).Inc()
	m.callDur.Observe(d.Seconds())
}
