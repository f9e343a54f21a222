package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the queue's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	tasksCreated   *prometheus.CounterVec
	tasksProcessed *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec

	workerRunning  prometheus.Gauge
	workerRestarts prometheus.Counter
	workerGiveUps  prometheus.Counter
	lockSkipped    prometheus.Counter
	signalsSent    *prometheus.CounterVec
	signalsHandled prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexq_tasks_created_total",
				Help: "Total number of task rows persisted",
			},
			[]string{"type"},
		),
		tasksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexq_tasks_processed_total",
				Help: "Total number of tasks executed, by result",
			},
			[]string{"type", "result"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexq_task_duration_seconds",
				Help:    "Time spent in the indexer per task",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		workerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indexq_worker_running",
			Help: "1 while the queue worker of this process is active",
		}),
		workerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexq_worker_restarts_total",
			Help: "Automatic worker restarts after a failed pass",
		}),
		workerGiveUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexq_worker_restart_limit_total",
			Help: "Times the worker stopped after reaching the restart limit",
		}),
		lockSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexq_lock_skipped_passes_total",
			Help: "Passes skipped because another node held the shared index lock",
		}),
		signalsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexq_signals_sent_total",
				Help: "Signals published to other nodes, by outcome",
			},
			[]string{"outcome"},
		),
		signalsHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexq_signals_received_total",
			Help: "Signals received from other nodes",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.tasksCreated, m.tasksProcessed, m.taskDuration,
			m.workerRunning, m.workerRestarts, m.workerGiveUps,
			m.lockSkipped, m.signalsSent, m.signalsHandled,
		)
	}
	return m
}

func (m *Metrics) TaskCreated(taskType string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(taskType).Inc()
}

func (m *Metrics) TaskProcessed(taskType string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tasksProcessed.WithLabelValues(taskType, result).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func (m *Metrics) WorkerRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.workerRunning.Set(1)
	} else {
		m.workerRunning.Set(0)
	}
}

func (m *Metrics) WorkerRestarted() {
	if m == nil {
		return
	}
	m.workerRestarts.Inc()
}

func (m *Metrics) WorkerGaveUp() {
	if m == nil {
		return
	}
	m.workerGiveUps.Inc()
}

func (m *Metrics) LockSkipped() {
	if m == nil {
		return
	}
	m.lockSkipped.Inc()
}

func (m *Metrics) SignalSent(outcome string) {
	if m == nil {
		return
	}
	m.signalsSent.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SignalReceived() {
	if m == nil {
		return
	}
	m.signalsHandled.Inc()
}
