package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics

var (
	publishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_bus_published_total",
			Help: "Events accepted by the bus",
		},
	)

	publishFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_bus_publish_failed_total",
			Help: "Publish attempts rejected or failed",
		},
	)

	deadLetterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_bus_dead_letters_total",
			Help: "Deliveries moved to the dead-letter path after retries",
		},
		[]string{"subscriber"},
	)
)
