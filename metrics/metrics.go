package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_match_end_jobs_processed_total", Help: "Match-end jobs processed successfully"},
	)
	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_match_end_jobs_failed_total", Help: "Match-end job attempts that failed"},
	)
	JobsDead = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_match_end_jobs_dead_total", Help: "Match-end jobs parked after exhausting retries"},
	)
	BroadcastsSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_broadcasts_sent_total", Help: "Room broadcasts fanned out by the hub"},
	)
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "arena_ws_connections_active", Help: "Live websocket connections known to the hub"},
	)
	TournamentsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "arena_tournaments_started_total", Help: "Tournaments promoted to in_progress by the scheduler"},
	)
)

func Register() {
	prometheus.MustRegister(
		JobsProcessed,
		JobsFailed,
		JobsDead,
		BroadcastsSent,
		ConnectionsActive,
		TournamentsStarted,
	)
}
