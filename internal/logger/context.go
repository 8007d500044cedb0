package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are identifiers added to every log record written with the
// context. Message text and secrets never belong here.
type LogFields struct {
	RequestID  string // per-request id set by the HTTP middleware
	EventID    string // Slack event_id
	DeliveryID string // agent webhook delivery id
	SessionID  string // agent session, "slack:<channel>:<thread>"
	MessageID  string // agent message id
	Component  string // e.g. "relay.slack", "relay.agent"
}

// WithLogFields enriches ctx with fields. Non-empty values in fields
// replace existing ones.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := mergeFields(GetLogFields(ctx), fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, update LogFields) LogFields {
	result := existing
	if update.RequestID != "" {
		result.RequestID = update.RequestID
	}
	if update.EventID != "" {
		result.EventID = update.EventID
	}
	if update.DeliveryID != "" {
		result.DeliveryID = update.DeliveryID
	}
	if update.SessionID != "" {
		result.SessionID = update.SessionID
	}
	if update.MessageID != "" {
		result.MessageID = update.MessageID
	}
	if update.Component != "" {
		result.Component = update.Component
	}
	return result
}
