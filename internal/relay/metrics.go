package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook endpoints, used as the "endpoint" label.
const (
	endpointSlack = "slack_events"
	endpointAgent = "agent"
)

// Webhook outcomes, used as the "outcome" label.
const (
	outcomeUnauthorized = "unauthorized"
	outcomeBadRequest   = "bad_request"
	outcomeChallenge    = "challenge"
	outcomeIgnored      = "ignored"
	outcomeAccepted     = "accepted"
	outcomeDuplicate    = "duplicate"
	outcomeDelivered    = "delivered"
	outcomeFailed       = "failed"
)

// Downstream call stages, used as the "stage" label.
const (
	stageAgentSend = "agent_send"
	stageAgentGet  = "agent_get"
	stageSlackPost = "slack_post"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	Webhooks         *prometheus.CounterVec
	DedupHits        *prometheus.CounterVec
	DownstreamErrors *prometheus.CounterVec
	DroppedJobs      prometheus.Counter
}

// NewMetrics registers the relay collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Webhooks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signalbox",
				Name:      "webhooks_total",
				Help:      "Webhook calls by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		DedupHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signalbox",
				Name:      "dedup_hits_total",
				Help:      "Redeliveries absorbed by a dedup set.",
			},
			[]string{"set"},
		),
		DownstreamErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signalbox",
				Name:      "downstream_errors_total",
				Help:      "Failed calls to the agent API or Slack, by stage.",
			},
			[]string{"stage"},
		),
		DroppedJobs: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "signalbox",
				Name:      "dispatcher_dropped_total",
				Help:      "Acknowledged events dropped because the work queue was full.",
			},
		),
	}
}

func (m *Metrics) webhook(endpoint, outcome string) {
	m.Webhooks.WithLabelValues(endpoint, outcome).Inc()
}
