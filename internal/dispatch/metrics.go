package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics, grounded on dims-cloud-native-stack's
// pkg/recipe/metrics.go promauto pattern.
var (
	dispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intercept_dispatch_duration_seconds",
			Help:    "Duration of a single dispatch, from lookup through synthesis.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intercept_dispatch_total",
			Help: "Total dispatches by outcome.",
		},
		[]string{"outcome"}, // matched, unmatched, cancelled, callback_failure
	)
)
