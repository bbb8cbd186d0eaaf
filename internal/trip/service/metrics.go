package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var acceptAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "accept_attempts_total",
	Help: "Trip accept attempts grouped by outcome.",
}, []string{"result"})
