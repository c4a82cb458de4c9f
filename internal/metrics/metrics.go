package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	chunks        *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	batches       *prometheus.CounterVec
	retries       *prometheus.CounterVec
	continuations prometheus.Counter
	stageDuration *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: status (completed/failed)
		chunks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_chunks_total",
				Help: "Generation chunks processed by final status",
			},
			[]string{"status"},
		),
		// Labels: stage (transcribe/refine/translate)
		stageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_stage_failures_total",
				Help: "Chunk stage failures, including ones that degraded to a fallback",
			},
			[]string{"stage"},
		),
		batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_batches_total",
				Help: "Regeneration groups processed by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subforge_retries_total",
				Help: "Transient external-service failures that were retried",
			},
			[]string{"op"},
		),
		continuations: f.NewCounter(
			prometheus.CounterOpts{
				Name: "subforge_continuations_total",
				Help: "Continuation calls issued for truncated model output",
			},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subforge_stage_duration_seconds",
				Help:    "Stage duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
	}
}

func (m *Metrics) ChunkDone(ok bool) {
	if m == nil {
		return
	}
	status := "completed"
	if !ok {
		status = "failed"
	}
	m.chunks.WithLabelValues(status).Inc()
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// BatchDone records a regeneration group; status is "applied" or "kept".
func (m *Metrics) BatchDone(mode, status string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(mode, status).Inc()
}

func (m *Metrics) Retried(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) Continued() {
	if m == nil {
		return
	}
	m.continuations.Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}
