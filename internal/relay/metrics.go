package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Open websocket connections by kind",
	}, []string{"kind"})

	metricRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_rejected_connections_total",
		Help: "Connections closed before joining, by close code",
	}, []string{"code"})

	metricFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_inbound_frames_total",
		Help: "Inbound frames by kind and type",
	}, []string{"kind", "type"})

	metricPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_message_persist_failures_total",
		Help: "Chat messages delivered without being stored",
	})
)
