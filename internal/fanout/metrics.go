package fanout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fanout_events_published_total",
		Help: "Events published by type",
	}, []string{"type"})

	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanout_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	})

	metricSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_subscribers",
		Help: "Currently registered subscribers across all channels",
	})
)
