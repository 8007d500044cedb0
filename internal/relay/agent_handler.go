package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/signalbox/internal/agent"
	"github.com/zulandar/signalbox/internal/logger"
	"github.com/zulandar/signalbox/internal/telegraph"
)

const agentDeliveriesSet = "agent_deliveries"

// handleAgentWebhook receives agent callbacks and delivers the response
// into the originating Slack thread before answering, so a failed post is
// reported as a 500 and the agent may retry.
func (r *Relay) handleAgentWebhook(c *gin.Context) {
	deliveryID := c.GetHeader(agent.HeaderDelivery)
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component:  "relay.agent",
		DeliveryID: deliveryID,
	})

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	// An unreadable or oversized body cannot be authenticated.
	if err != nil {
		r.metrics.webhook(endpointAgent, outcomeUnauthorized)
		slog.WarnContext(ctx, "agent request body unreadable", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid agent signature"})
		return
	}

	if !agent.VerifyWebhookSignature(body, c.GetHeader(agent.HeaderSignature), r.agentSecret) {
		r.metrics.webhook(endpointAgent, outcomeUnauthorized)
		slog.WarnContext(ctx, "agent signature rejected", "client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid agent signature"})
		return
	}

	// The delivery is recorded before the body is validated or acted on; a
	// delivery that fails below is not retried within the dedup window.
	if deliveryID != "" && r.agentDeliveries.Seen(deliveryID) {
		r.metrics.DedupHits.WithLabelValues(agentDeliveriesSet).Inc()
		r.metrics.webhook(endpointAgent, outcomeDuplicate)
		c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
		return
	}

	ev, err := agent.ParseWebhookEvent(body)
	if err != nil {
		r.metrics.webhook(endpointAgent, outcomeBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if ev.Type != agent.EventMessageResponded {
		r.ignoreAgentEvent(ctx, c, true, "type", ev.Type)
		return
	}
	if ev.Data.MessageID == "" {
		r.ignoreAgentEvent(ctx, c, "missing messageId")
		return
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: ev.Data.MessageID, SessionID: ev.Data.SessionID})

	ctx, cancel := context.WithTimeout(ctx, r.agentTimeout)
	defer cancel()

	msg, err := r.agent.GetMessage(ctx, ev.Data.MessageID)
	if err != nil {
		r.metrics.DownstreamErrors.WithLabelValues(stageAgentGet).Inc()
		r.failAgentDelivery(ctx, c, "fetching agent message failed", err)
		return
	}
	if msg.Response == "" {
		r.ignoreAgentEvent(ctx, c, "missing response")
		return
	}

	dest, ok := ev.Data.Destination()
	if !ok {
		r.ignoreAgentEvent(ctx, c, "missing channel mapping")
		return
	}

	err = r.poster.Post(ctx, telegraph.OutboundMessage{
		ChannelID: dest.ExternalChannelID,
		ThreadID:  dest.ExternalThreadID,
		Text:      msg.Response,
	})
	if err != nil {
		r.metrics.DownstreamErrors.WithLabelValues(stageSlackPost).Inc()
		r.failAgentDelivery(ctx, c, "posting agent response to slack failed", err)
		return
	}

	r.metrics.webhook(endpointAgent, outcomeDelivered)
	slog.InfoContext(ctx, "agent response posted to slack")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ignoreAgentEvent answers 200 with the given "ignored" marker, either true
// or a reason string.
func (r *Relay) ignoreAgentEvent(ctx context.Context, c *gin.Context, marker any, attrs ...any) {
	r.metrics.webhook(endpointAgent, outcomeIgnored)
	slog.DebugContext(ctx, "agent webhook ignored", append([]any{"reason", marker}, attrs...)...)
	c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": marker})
}

func (r *Relay) failAgentDelivery(ctx context.Context, c *gin.Context, msg string, err error) {
	r.metrics.webhook(endpointAgent, outcomeFailed)
	slog.ErrorContext(ctx, msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deliver slack response"})
}
