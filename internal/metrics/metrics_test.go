package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TaskCreated("update")
	m.TaskCreated("update")
	m.TaskProcessed("update", nil, time.Millisecond)
	m.TaskProcessed("update", errors.New("boom"), time.Millisecond)
	m.WorkerRestarted()
	m.WorkerRunning(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksCreated.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksProcessed.WithLabelValues("update", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksProcessed.WithLabelValues("update", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerRestarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workerRunning))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskCreated("update")
		m.TaskProcessed("update", nil, time.Second)
		m.WorkerRunning(true)
		m.WorkerRestarted()
		m.WorkerGaveUp()
		m.LockSkipped()
		m.SignalSent("ok")
		m.SignalReceived()
	})
}
