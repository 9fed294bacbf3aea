// Package metrics exposes Prometheus counters/gauges for the supervisor
// engine: how many tasks are running, and how the guardian is faring.
//
// Grounded on the teacher's internal/metrics/process_metrics.go namespacing
// convention (Namespace/Subsystem/Name/Help, registered against a supplied
// prometheus.Registerer so tests can use their own registry).
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector this package registers.
type Metrics struct {
	TasksRunning            prometheus.Gauge
	TaskStartsTotal         prometheus.Counter
	GuardianRestartsTotal   prometheus.Counter
	GuardianFailuresTotal   prometheus.Counter
}

// New constructs the collector set, unregistered.
func New() *Metrics {
	return &Metrics{
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tasksupervisor",
			Name:      "tasks_running",
			Help:      "Number of tasks with a currently running live entry.",
		}),
		TaskStartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksupervisor",
			Name:      "task_starts_total",
			Help:      "Total number of start operations attempted, successful or not.",
		}),
		GuardianRestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksupervisor",
			Subsystem: "guardian",
			Name:      "restarts_total",
			Help:      "Total number of successful guardian-initiated restarts.",
		}),
		GuardianFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tasksupervisor",
			Subsystem: "guardian",
			Name:      "restart_failures_total",
			Help:      "Total number of failed guardian-initiated restart attempts.",
		}),
	}
}

// Register attaches every collector to r, ignoring AlreadyRegisteredError so
// Register is safe to call more than once against the same registry.
func (m *Metrics) Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.TasksRunning,
		m.TaskStartsTotal,
		m.GuardianRestartsTotal,
		m.GuardianFailuresTotal,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
