package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rubricguard_validations_total",
		Help: "Total number of validation requests dispatched",
	})

	validationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rubricguard_validation_failures_total",
		Help: "Total number of validation requests that ended in an error",
	})

	staleDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rubricguard_stale_judgments_dropped_total",
		Help: "Judgment responses discarded because newer input superseded them",
	})

	validationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rubricguard_validations_in_flight",
		Help: "Number of judgment requests currently outstanding",
	})
)
