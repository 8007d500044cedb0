package telegraph

import (
	"context"
	"sync"
)

// MockPoster implements Poster and BotUserIDer for testing. It records
// posted messages and can be told to fail.
type MockPoster struct {
	mu        sync.Mutex
	sent      []OutboundMessage
	postErr   error
	botUserID string
}

// NewMockPoster creates an empty MockPoster.
func NewMockPoster() *MockPoster {
	return &MockPoster{}
}

// Post records the outbound message, or returns the configured error.
func (m *MockPoster) Post(ctx context.Context, msg OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return m.postErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// BotUserID returns the configured bot user ID (implements BotUserIDer).
func (m *MockPoster) BotUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID
}

// --- Test helpers ---

// SetBotUserID sets the bot user ID for testing.
func (m *MockPoster) SetBotUserID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = id
}

// SetPostError makes subsequent Post calls fail with err. nil clears it.
func (m *MockPoster) SetPostError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postErr = err
}

// LastSent returns the most recently posted message.
// Returns zero value and false if nothing has been posted.
func (m *MockPoster) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of messages posted.
func (m *MockPoster) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all posted messages.
func (m *MockPoster) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
