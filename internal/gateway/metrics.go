package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "flashbets_sessions_connected",
	Help: "Sessões WebSocket conectadas",
})
