package bootstrap

import "github.com/prometheus/client_golang/prometheus"

var (
	readinessAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_bootstrap_readiness_attempts_total",
			Help: "Readiness probes issued during startup by service and result.",
		},
		[]string{"service", "result"},
	)
	modelPulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_bootstrap_model_pulls_total",
			Help: "Model pulls issued during startup by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(readinessAttempts, modelPulls)
}
