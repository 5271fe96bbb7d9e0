package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_relay_connections",
			Help: "Current number of active relay connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_relay_rooms",
			Help: "Current number of relay rooms with at least one member.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_relay_frames_delivered_total",
			Help: "Total relay frames handed to client send buffers.",
		},
	)
	wsClientsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_relay_clients_dropped_total",
			Help: "Clients disconnected because their send buffer was full.",
		},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_chat_relay_events_published_total",
			Help: "Relay events published, partitioned by event name.",
		},
		[]string{"event"},
	)
	publishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_chat_relay_publish_failures_total",
			Help: "Relay events that could not be encoded or handed to the broker.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsClientsDropped, eventsPublished, publishFailures)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func incDropped() {
	wsClientsDropped.Inc()
}

func incPublished(name string) {
	eventsPublished.WithLabelValues(name).Inc()
}

func incPublishFailures() {
	publishFailures.Inc()
}
