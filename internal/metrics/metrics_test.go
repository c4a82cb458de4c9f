package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ChunkDone(true)
	m.ChunkDone(true)
	m.ChunkDone(false)
	m.BatchDone("retime", "kept")
	m.Retried("refine")
	m.Continued()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunks.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunks.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("retime", "kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("refine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.continuations))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChunkDone(true)
		m.StageFailed("transcribe")
		m.BatchDone("proofread", "applied")
		m.Retried("x")
		m.Continued()
		m.ObserveStage("refine", 1)
	})
}
