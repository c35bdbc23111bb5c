// Package metrics exposes the Prometheus collectors the task
// subsystem updates as tasks move through the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private registry so tests can spin up a fresh one
// per run instead of fighting over prometheus's global default.
type Metrics struct {
	Registry *prometheus.Registry

	submittedTasks prometheus.Counter
	processedTasks prometheus.Counter
	failedTasks    prometheus.Counter
	taskRetries    prometheus.Counter
	activeWorkers  prometheus.Gauge
	taskStatus     *prometheus.GaugeVec
	stageDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		submittedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "submitted_tasks",
			Help: "Total number of tasks accepted by the task manager.",
		}),
		processedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "processed_tasks",
			Help: "Total number of tasks that reached a successful terminal state.",
		}),
		failedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "failed_tasks",
			Help: "Total number of tasks that reached a failed terminal state.",
		}),
		taskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "task_retries",
			Help: "Total number of retry attempts issued across all tasks.",
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_workers",
			Help: "Number of workers currently processing a task.",
		}),
		taskStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "task_status",
			Help: "Number of tasks currently in each status.",
		}, []string{"state"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_stage_duration_seconds",
			Help:    "Duration of a fetch or parse stage within task processing.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	m.Registry.MustRegister(
		m.submittedTasks,
		m.processedTasks,
		m.failedTasks,
		m.taskRetries,
		m.activeWorkers,
		m.taskStatus,
		m.stageDuration,
	)
	return m
}

func (m *Metrics) IncSubmitted()     { m.submittedTasks.Inc() }
func (m *Metrics) IncProcessed()     { m.processedTasks.Inc() }
func (m *Metrics) IncFailed()        { m.failedTasks.Inc() }
func (m *Metrics) IncRetries()       { m.taskRetries.Inc() }
func (m *Metrics) IncActiveWorkers() { m.activeWorkers.Inc() }
func (m *Metrics) DecActiveWorkers() { m.activeWorkers.Dec() }

func (m *Metrics) MoveStatus(from, to string) {
	if from != "" {
		m.taskStatus.WithLabelValues(from).Dec()
	}
	m.taskStatus.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
