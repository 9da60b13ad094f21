package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the engine's prometheus collectors.
type metrics struct {
	requests     *prometheus.CounterVec
	steps        *prometheus.CounterVec
	planDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modplan_requests_total",
			Help: "Modify requests by operation and result.",
		}, []string{"operation", "result"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modplan_steps_total",
			Help: "Plan steps by result (executed, skipped, failed).",
		}, []string{"result"}),
		planDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modplan_plan_duration_seconds",
			Help:    "Plan execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"plan_type"}),
	}
}
