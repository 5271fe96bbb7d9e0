package presence

import "github.com/prometheus/client_golang/prometheus"

var (
	onlineSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_presence_online_sessions",
			Help: "Anonymous sessions currently considered online.",
		},
	)
	trackedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_chat_presence_tracked_sessions",
			Help: "Anonymous sessions held by the presence tracker.",
		},
	)
)

func init() {
	prometheus.MustRegister(onlineSessions, trackedSessions)
}
