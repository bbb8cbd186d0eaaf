package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matching_time_seconds",
		Help:    "Time spent turning a trip-created signal into a notification fan-out.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	candidatesFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_candidates_found",
		Help:    "Number of free drivers returned per radius query.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
	})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_notify_failures_total",
		Help: "Driver notification dispatch failures during matching fan-out.",
	})
)
