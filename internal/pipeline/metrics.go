package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
)

// Metrics instruments pipeline runs and stage transitions. A nil
// *Metrics is a no-op, which keeps tests free of registries.
type Metrics struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	stagesTotal  *prometheus.CounterVec
	stageDur     *prometheus.HistogramVec
}

// NewMetrics creates and registers pipeline metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviewd_pipeline_runs_started_total",
			Help: "Pipeline runs launched.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewd_pipeline_runs_finished_total",
			Help: "Pipeline runs finished, labeled by outcome.",
		}, []string{"outcome"}),
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewd_pipeline_stages_total",
			Help: "Stage executions, labeled by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewd_pipeline_stage_duration_seconds",
			Help:    "Stage execution duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
	}
	reg.MustRegister(m.runsStarted, m.runsFinished, m.stagesTotal, m.stageDur)
	return m
}

// RunStarted records a pipeline launch.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

// RunFinished records a terminal pipeline outcome.
func (m *Metrics) RunFinished(ok bool) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(outcome(ok)).Inc()
}

// StageObserved records one stage execution.
func (m *Metrics) StageObserved(stage matter.StageID, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.stagesTotal.WithLabelValues(string(stage), outcome(ok)).Inc()
	m.stageDur.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
