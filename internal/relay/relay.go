// Package relay serves the two webhook endpoints that bridge Slack and the
// hosted agent. Slack events are authenticated, acknowledged and then
// forwarded on a worker pool; agent responses are authenticated, resolved
// to their Slack thread and posted back before the webhook is answered.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zulandar/signalbox/internal/agent"
	"github.com/zulandar/signalbox/internal/dedup"
	"github.com/zulandar/signalbox/internal/telegraph"
	"github.com/zulandar/signalbox/internal/telegraph/slack"
)

// maxBodyBytes caps webhook bodies; Slack events are far smaller.
const maxBodyBytes = 1 << 20

// AgentClient is the subset of the agent API the relay calls.
type AgentClient interface {
	SendMessage(ctx context.Context, req agent.SendRequest, idempotencyKey string) (*agent.SendResult, error)
	GetMessage(ctx context.Context, id string) (*agent.Message, error)
}

// Opts holds the collaborators and secrets for a Relay.
type Opts struct {
	Agent  AgentClient
	Poster telegraph.Poster

	SlackSigningSecret string
	AgentWebhookSecret string
	// BotUserID is the relay's own Slack user; its messages are ignored.
	BotUserID string

	// SlackEvents records Slack event_ids; AgentDeliveries records agent
	// delivery ids. They must be distinct stores.
	SlackEvents     dedup.Store
	AgentDeliveries dedup.Store

	Dispatcher *Dispatcher
	Metrics    *Metrics // default: registered on a private registry
	// AgentTimeout bounds the synchronous work of an agent webhook
	// (default 30s).
	AgentTimeout time.Duration
	Clock        func() time.Time // default time.Now
}

// Relay holds the state shared by the webhook handlers.
type Relay struct {
	agent           AgentClient
	poster          telegraph.Poster
	slackSecret     string
	agentSecret     string
	normalizer      slack.Normalizer
	slackEvents     dedup.Store
	agentDeliveries dedup.Store
	dispatcher      *Dispatcher
	metrics         *Metrics
	agentTimeout    time.Duration
	now             func() time.Time
}

// New validates opts and builds a Relay.
func New(opts Opts) (*Relay, error) {
	switch {
	case opts.Agent == nil:
		return nil, fmt.Errorf("relay: agent client is required")
	case opts.Poster == nil:
		return nil, fmt.Errorf("relay: poster is required")
	case opts.SlackSigningSecret == "":
		return nil, fmt.Errorf("relay: slack signing secret is required")
	case opts.AgentWebhookSecret == "":
		return nil, fmt.Errorf("relay: agent webhook secret is required")
	case opts.SlackEvents == nil || opts.AgentDeliveries == nil:
		return nil, fmt.Errorf("relay: dedup stores are required")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("relay: dispatcher is required")
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	timeout := opts.AgentTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Relay{
		agent:           opts.Agent,
		poster:          opts.Poster,
		slackSecret:     opts.SlackSigningSecret,
		agentSecret:     opts.AgentWebhookSecret,
		normalizer:      slack.Normalizer{BotUserID: opts.BotUserID},
		slackEvents:     opts.SlackEvents,
		agentDeliveries: opts.AgentDeliveries,
		dispatcher:      opts.Dispatcher,
		metrics:         metrics,
		agentTimeout:    timeout,
		now:             clock,
	}, nil
}
