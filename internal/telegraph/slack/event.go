package slack

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack/slackevents"
	"github.com/zulandar/signalbox/internal/telegraph"
)

// Platform is the session id prefix for Slack conversations.
const Platform = "slack"

// Envelope is the outer Events API payload. It is one of URLVerification,
// EventCallback or OtherEnvelope.
type Envelope interface {
	// Type returns the envelope's "type" field.
	Type() string
}

// URLVerification is the endpoint ownership handshake. The receiver must
// echo Challenge back.
type URLVerification struct {
	Challenge string
}

// EventCallback wraps a delivered workspace event.
type EventCallback struct {
	EventID string
	TeamID  string
	// EventType is the inner event's "type" (e.g. "message", "app_mention").
	EventType string
	// Event is the inner event decoded as a message. Fields that do not
	// apply to EventType are left empty.
	Event MessageEvent
}

// MessageEvent holds the inner event fields shared by "message" and
// "app_mention" events.
type MessageEvent struct {
	Type            string `json:"type"`
	SubType         string `json:"subtype"`
	User            string `json:"user"`
	BotID           string `json:"bot_id"`
	Text            string `json:"text"`
	Channel         string `json:"channel"`
	TimeStamp       string `json:"ts"`
	ThreadTimeStamp string `json:"thread_ts"`
}

// OtherEnvelope is any payload this relay does not act on, including
// JSON that is not an object.
type OtherEnvelope struct {
	Kind string
}

func (URLVerification) Type() string { return string(slackevents.URLVerification) }
func (EventCallback) Type() string   { return string(slackevents.CallbackEvent) }
func (e OtherEnvelope) Type() string { return e.Kind }

// ErrInvalidJSON is returned by ParseEnvelope when the body is not JSON.
var ErrInvalidJSON = errors.New("slack: invalid json")

// rawEnvelope mirrors the fields of the outer payload we read. EventID and
// TeamID are decoded loosely so that a mistyped id affects only that field
// instead of the whole request.
type rawEnvelope struct {
	Type    string          `json:"type"`
	TeamID  any             `json:"team_id"`
	EventID any             `json:"event_id"`
	Event   json.RawMessage `json:"event"`
}

// ParseEnvelope decodes a raw Events API body. It fails only when body is
// not valid JSON; every other shape maps to a variant.
func ParseEnvelope(body []byte) (Envelope, error) {
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		// Valid JSON of the wrong shape (array, string, mistyped type field).
		return OtherEnvelope{}, nil
	}

	switch raw.Type {
	case string(slackevents.URLVerification):
		var v slackevents.EventsAPIURLVerificationEvent
		_ = json.Unmarshal(body, &v) // a non-string challenge echoes as empty
		return URLVerification{Challenge: v.Challenge}, nil

	case string(slackevents.CallbackEvent):
		var cb EventCallback
		if team, ok := raw.TeamID.(string); ok {
			cb.TeamID = team
		}
		if id, ok := raw.EventID.(string); ok {
			cb.EventID = id
		}
		if len(raw.Event) > 0 {
			var inner struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw.Event, &inner); err == nil {
				cb.EventType = inner.Type
			}
			// Inner events whose fields do not fit a message (e.g. a
			// channel object) leave Event zero and fail normalization.
			if err := json.Unmarshal(raw.Event, &cb.Event); err != nil {
				cb.Event = MessageEvent{Type: cb.EventType}
			}
		}
		return cb, nil

	default:
		return OtherEnvelope{Kind: raw.Type}, nil
	}
}

// Reasons an event callback is not turned into an InboundMessage.
var (
	ErrMissingEventID   = errors.New("slack: missing event id")
	ErrBotMessage       = errors.New("slack: bot-authored message")
	ErrUnsupportedEvent = errors.New("slack: unsupported event type")
	ErrEmptyText        = errors.New("slack: empty text")
	ErrMissingChannel   = errors.New("slack: missing channel")
	ErrMissingThread    = errors.New("slack: missing thread timestamp")
)

// Normalizer maps event callbacks to canonical inbound messages.
type Normalizer struct {
	// BotUserID is the relay's own Slack user; its messages are dropped.
	// Empty disables the check.
	BotUserID string
}

// Normalize returns the inbound message for cb or the reason it was
// rejected. Messages from any bot are rejected so the relay never answers
// itself.
func (n Normalizer) Normalize(cb EventCallback) (telegraph.InboundMessage, error) {
	if cb.EventID == "" {
		return telegraph.InboundMessage{}, ErrMissingEventID
	}

	ev := cb.Event
	if ev.BotID != "" || ev.SubType == "bot_message" || (n.BotUserID != "" && ev.User == n.BotUserID) {
		return telegraph.InboundMessage{}, ErrBotMessage
	}

	switch cb.EventType {
	case string(slackevents.Message), string(slackevents.AppMention):
	default:
		return telegraph.InboundMessage{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, cb.EventType)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return telegraph.InboundMessage{}, ErrEmptyText
	}
	if ev.Channel == "" {
		return telegraph.InboundMessage{}, ErrMissingChannel
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	if threadTS == "" {
		return telegraph.InboundMessage{}, ErrMissingThread
	}

	return telegraph.InboundMessage{
		Platform:  Platform,
		EventID:   cb.EventID,
		Text:      text,
		ChannelID: ev.Channel,
		MessageTS: ev.TimeStamp,
		ThreadTS:  threadTS,
		UserID:    ev.User,
		SessionID: telegraph.SessionID(Platform, ev.Channel, threadTS),
	}, nil
}

// Normalize parses body and normalizes it with no bot user filter. It
// returns nil for anything that is not an acceptable message event.
func Normalize(body []byte) *telegraph.InboundMessage {
	env, err := ParseEnvelope(body)
	if err != nil {
		return nil
	}
	cb, ok := env.(EventCallback)
	if !ok {
		return nil
	}
	msg, err := Normalizer{}.Normalize(cb)
	if err != nil {
		return nil
	}
	return &msg
}
