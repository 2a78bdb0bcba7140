package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	TicketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incident_jira_tickets_total", Help: "Ticket filing attempts by source and outcome"},
		[]string{"source", "outcome"},
	)
	JiraRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "incident_jira_request_duration_seconds", Help: "Latency of Jira create issue calls", Buckets: prometheus.DefBuckets},
	)
	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incident_jira_side_effect_failures_total", Help: "Failed best-effort actions after a ticket was filed"},
		[]string{"kind"},
	)
	WatcherDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incident_jira_watcher_detections_total", Help: "Pod failures detected by the watcher"},
		[]string{"reason", "namespace"},
	)
)

const (
	OutcomeCreated        = "created"
	OutcomeRejected       = "rejected"
	OutcomeTransportError = "transport_error"
	OutcomeInvalid        = "invalid"
)

func init() {
	prometheus.MustRegister(TicketsTotal, JiraRequestDuration, SideEffectFailures, WatcherDetections)
}
