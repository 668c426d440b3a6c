package workflow

import "github.com/prometheus/client_golang/prometheus"

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_worker_tasks_total",
			Help: "Tasks processed by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflowd_worker_task_duration_seconds",
			Help:    "Task processing duration by action.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"action"},
	)
	pollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_worker_poll_errors_total",
			Help: "Poll cycles that failed, by reason.",
		},
		[]string{"reason"},
	)
	deliveryErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_worker_delivery_errors_total",
			Help: "Task responses that could not be delivered.",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, taskDuration, pollErrors, deliveryErrors)
}
