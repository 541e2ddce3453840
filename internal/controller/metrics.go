package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

const (
	outcomeSucceeded   = "succeeded"
	outcomeStageFailed = "stage_failed"
	outcomeCanceled    = "canceled"
	outcomeRejected    = "rejected"
	outcomeFault       = "fault"
)

// Metrics holds the Prometheus collectors updated after each run.
type Metrics struct {
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	bytesSaved    *prometheus.CounterVec
	cleanupWarns  prometheus.Counter
}

// NewMetrics registers the run collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "excelslim_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "excelslim_stage_duration_seconds",
			Help:    "Wall time of completed stages.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		bytesSaved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "excelslim_bytes_saved_total",
			Help: "Bytes removed by completed stages.",
		}, []string{"stage"}),
		cleanupWarns: f.NewCounter(prometheus.CounterOpts{
			Name: "excelslim_cleanup_warnings_total",
			Help: "Intermediates or logs that could not be deleted.",
		}),
	}
}

// observeRun is a no-op on a nil receiver.
func (m *Metrics) observeRun(outcome string, report *orchestrator.Report) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if report == nil {
		return
	}
	for _, s := range report.Stages {
		m.stageDuration.WithLabelValues(s.Stage.String()).Observe(s.Duration.Seconds())
		if saved := s.Saved(); saved > 0 {
			m.bytesSaved.WithLabelValues(s.Stage.String()).Add(float64(saved))
		}
	}
	m.cleanupWarns.Add(float64(len(report.Warnings)))
}
