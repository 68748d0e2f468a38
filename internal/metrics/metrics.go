// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection, presence, and room counts, counters for
// message throughput, and a histogram for send latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatserver_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of users with a bound connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatserver_online_users",
		Help: "Current number of users with a live connection",
	})

	// ActiveRooms tracks the number of chat rooms with at least one subscriber.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatserver_active_rooms",
		Help: "Current number of chat rooms with at least one subscriber",
	})

	// MessagesTotal counts processed messages, labeled by outcome:
	// "sent", "rejected", or "read".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatserver_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// SendLatency records end-to-end send processing latency in seconds,
	// from event receipt to broadcast.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatserver_send_latency_seconds",
		Help:    "Message send processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		ActiveRooms,
		MessagesTotal,
		SendLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
