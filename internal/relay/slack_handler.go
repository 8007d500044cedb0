package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zulandar/signalbox/internal/agent"
	"github.com/zulandar/signalbox/internal/logger"
	"github.com/zulandar/signalbox/internal/telegraph"
	"github.com/zulandar/signalbox/internal/telegraph/slack"
)

const slackEventsSet = "slack_events"

// handleSlackEvents receives Slack Events API calls. Event callbacks are
// acknowledged before any forwarding happens; the forwarding runs on the
// dispatcher.
func (r *Relay) handleSlackEvents(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{Component: "relay.slack"})

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	// An unreadable or oversized body cannot be authenticated.
	if err != nil {
		r.metrics.webhook(endpointSlack, outcomeUnauthorized)
		slog.WarnContext(ctx, "slack request body unreadable", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
		return
	}

	if !slack.VerifySignature(c.Request.Header, body, r.slackSecret, r.now()) {
		r.metrics.webhook(endpointSlack, outcomeUnauthorized)
		slog.WarnContext(ctx, "slack signature rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid slack signature"})
		return
	}

	env, err := slack.ParseEnvelope(body)
	if err != nil {
		r.metrics.webhook(endpointSlack, outcomeBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	switch e := env.(type) {
	case slack.URLVerification:
		r.metrics.webhook(endpointSlack, outcomeChallenge)
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(e.Challenge))

	case slack.EventCallback:
		r.metrics.webhook(endpointSlack, outcomeAccepted)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		if !r.dispatcher.Submit(ctx, "slack_event", func(ctx context.Context) {
			r.processSlackEvent(ctx, e)
		}) {
			r.metrics.DroppedJobs.Inc()
			slog.ErrorContext(ctx, "slack event dropped, work queue full", "event_id", e.EventID)
		}

	default:
		r.metrics.webhook(endpointSlack, outcomeIgnored)
		slog.DebugContext(ctx, "slack envelope ignored", "type", env.Type())
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
	}
}

// processSlackEvent deduplicates, normalizes and forwards one event
// callback, posting the agent's reply when it answers synchronously.
// Failures are logged and dropped; Slack has already been acknowledged.
func (r *Relay) processSlackEvent(ctx context.Context, cb slack.EventCallback) {
	sc := logger.StartLinkedSpan(ctx, trace.SpanContextFromContext(ctx), "relay.slack_event",
		trace.WithAttributes(attribute.String("slack.event_type", cb.EventType)))
	defer sc.End()
	ctx = sc.Context()

	if cb.EventID == "" {
		slog.DebugContext(ctx, "slack event without event_id ignored")
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{EventID: cb.EventID})

	if r.slackEvents.Seen(cb.EventID) {
		r.metrics.DedupHits.WithLabelValues(slackEventsSet).Inc()
		slog.DebugContext(ctx, "duplicate slack event ignored")
		return
	}

	msg, err := r.normalizer.Normalize(cb)
	if err != nil {
		slog.DebugContext(ctx, "slack event not forwarded", "reason", err)
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: msg.SessionID})

	res, err := r.agent.SendMessage(ctx, sendRequest(msg), "slack-"+msg.EventID)
	if err != nil {
		r.metrics.DownstreamErrors.WithLabelValues(stageAgentSend).Inc()
		sc.RecordError(err)
		slog.ErrorContext(ctx, "forward to agent failed", "error", err)
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: res.MessageID})

	if !res.Responded() {
		slog.DebugContext(ctx, "slack event forwarded, reply pending", "status", res.Status)
		return
	}

	err = r.poster.Post(ctx, telegraph.OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadTS,
		Text:      res.Response,
	})
	if err != nil {
		r.metrics.DownstreamErrors.WithLabelValues(stageSlackPost).Inc()
		sc.RecordError(err)
		slog.ErrorContext(ctx, "posting agent reply to slack failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "agent reply posted to slack")
}

// sendRequest builds the agent request for msg. The agent id comes from
// the client.
func sendRequest(msg telegraph.InboundMessage) agent.SendRequest {
	return agent.SendRequest{
		SessionID: msg.SessionID,
		Message:   msg.Text,
		Metadata: agent.Metadata{
			CorrelationID: msg.EventID,
			Channel: &agent.ChannelRef{
				Type:              msg.Platform,
				ExternalChannelID: msg.ChannelID,
				ExternalThreadID:  msg.ThreadTS,
				ExternalMessageID: msg.MessageTS,
				ExternalUserID:    msg.UserID,
			},
		},
	}
}
