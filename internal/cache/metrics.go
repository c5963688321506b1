package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contacts_identity_cache_lookups_total",
		Help: "Identity cache reads by namespace and result (hit, miss, error)",
	}, []string{"namespace", "result"})

	unavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contacts_identity_cache_unavailable_total",
		Help: "Identity cache operations that failed and were treated as a miss or no-op",
	}, []string{"op"})

	opDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contacts_identity_cache_op_duration_ms",
		Help:    "Duration of identity cache store calls in milliseconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"op"})
)
