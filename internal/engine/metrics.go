package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lims_engine_operations_total",
		Help: "Resource engine operations by resource, operation and outcome kind.",
	}, []string{"resource", "op", "outcome"})

	codeLockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lims_code_lock_wait_seconds",
		Help:    "Time spent waiting for the sequential code scope lock.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"table"})
)

func observe(resource, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	operations.WithLabelValues(resource, op, outcome).Inc()
}
