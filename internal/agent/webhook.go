package agent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Headers the agent sends with every webhook call.
const (
	HeaderSignature = "X-Rooaak-Signature"
	HeaderDelivery  = "X-Rooaak-Delivery"
)

// EventMessageResponded is sent when the agent has answered a message.
const EventMessageResponded = "message.responded"

const signaturePrefix = "sha256="

// ErrInvalidJSON is returned by ParseWebhookEvent when the body is not JSON.
var ErrInvalidJSON = errors.New("agent: invalid json")

// SignWebhook returns the signature header value for body.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature reports whether signature authenticates the raw
// body under secret. Both "sha256=<hex>" and a bare hex digest are
// accepted; hex case is ignored.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	got := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix))
	want := strings.TrimPrefix(SignWebhook(secret, body), signaturePrefix)
	return hmac.Equal([]byte(got), []byte(want))
}

// WebhookEvent is a decoded agent webhook body.
type WebhookEvent struct {
	Type string
	Data EventData
}

// EventData is the "data" object of a webhook event.
type EventData struct {
	MessageID string
	SessionID string
	// Channel is data.channel; MetadataChannel is data.metadata.channel.
	Channel         *ChannelRef
	MetadataChannel *ChannelRef
}

// Destination returns the chat thread a response belongs to: data.channel
// when present, else data.metadata.channel. ok is false when neither
// names an external channel.
func (d EventData) Destination() (ref ChannelRef, ok bool) {
	switch {
	case d.Channel != nil:
		ref = *d.Channel
	case d.MetadataChannel != nil:
		ref = *d.MetadataChannel
	}
	return ref, ref.ExternalChannelID != ""
}

// ParseWebhookEvent decodes a webhook body. It fails only when body is not
// valid JSON; fields of an unexpected type are left empty.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	if !json.Valid(body) {
		return WebhookEvent{}, ErrInvalidJSON
	}

	var raw struct {
		Type any             `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, nil
	}

	ev := WebhookEvent{Type: looseString(raw.Type)}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw.Data, &data); err != nil {
		return ev, nil
	}
	ev.Data.MessageID = looseString(rawValue(data["messageId"]))
	ev.Data.SessionID = looseString(rawValue(data["sessionId"]))
	ev.Data.Channel = channelRef(data["channel"])

	var metadata map[string]json.RawMessage
	if err := json.Unmarshal(data["metadata"], &metadata); err == nil {
		ev.Data.MetadataChannel = channelRef(metadata["channel"])
	}
	return ev, nil
}

func rawValue(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// channelRef decodes a channel object; anything but an object is nil.
func channelRef(raw json.RawMessage) *ChannelRef {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}
	return &ChannelRef{
		Type:              looseString(fields["type"]),
		ExternalChannelID: looseString(fields["externalChannelId"]),
		ExternalThreadID:  looseString(fields["externalThreadId"]),
		ExternalMessageID: looseString(fields["externalMessageId"]),
		ExternalUserID:    looseString(fields["externalUserId"]),
	}
}

// looseString returns strings as-is and numbers in decimal form.
func looseString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
