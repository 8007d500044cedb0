// Package telegraph holds the chat-side vocabulary of the relay: the
// canonical inbound message produced from a platform event and the
// outbound message posted back into a thread.
package telegraph

import (
	"context"
	"strings"
)

// Poster is the interface platform-specific implementations satisfy to
// deliver a message into a chat channel or thread.
type Poster interface {
	// Post delivers msg. An empty ThreadID posts a new thread root.
	Post(ctx context.Context, msg OutboundMessage) error
}

// BotUserIDer is an optional interface that posters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}

// InboundMessage is a chat message accepted for forwarding to the agent.
// It is built once by a platform normalizer and treated as immutable.
type InboundMessage struct {
	Platform  string // e.g. "slack"
	EventID   string // upstream event id, stable across redeliveries
	Text      string // trimmed, never empty
	ChannelID string // platform channel identifier
	MessageTS string // timestamp of the message itself
	ThreadTS  string // thread root; equals MessageTS for a root message
	UserID    string // author
	SessionID string // see SessionID
}

// OutboundMessage is a message to post into a chat channel.
type OutboundMessage struct {
	ChannelID string // target channel
	ThreadID  string // thread to reply in (empty for new top-level message)
	Text      string // message text (platform-native formatting)
}

// SessionID derives the agent session key for a chat thread. The same
// platform, channel and thread always produce the same key. Distinct
// threads get distinct keys as long as no part contains ":"; Slack channel
// ids are alphanumeric and thread timestamps are "<seconds>.<micros>".
func SessionID(platform, channelID, threadTS string) string {
	return strings.Join([]string{platform, channelID, threadTS}, ":")
}
