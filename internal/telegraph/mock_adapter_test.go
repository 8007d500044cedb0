package telegraph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// Compile-time interface compliance checks.
var _ Poster = (*MockPoster)(nil)
var _ BotUserIDer = (*MockPoster)(nil)

func TestMockPoster_RecordsPosts(t *testing.T) {
	m := NewMockPoster()
	ctx := context.Background()

	if _, ok := m.LastSent(); ok {
		t.Fatal("LastSent on empty poster should report false")
	}

	if err := m.Post(ctx, OutboundMessage{ChannelID: "C1", ThreadID: "1.1", Text: "hi"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := m.Post(ctx, OutboundMessage{ChannelID: "C2", Text: "root"}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	if got := m.SentCount(); got != 2 {
		t.Errorf("SentCount = %d, want 2", got)
	}
	last, ok := m.LastSent()
	if !ok || last.ChannelID != "C2" || last.ThreadID != "" {
		t.Errorf("LastSent = %+v, %v", last, ok)
	}
}

func TestMockPoster_AllSentIsCopy(t *testing.T) {
	m := NewMockPoster()
	m.Post(context.Background(), OutboundMessage{Text: "a"})

	all := m.AllSent()
	all[0].Text = "mutated"

	if last, _ := m.LastSent(); last.Text != "a" {
		t.Errorf("AllSent leaked internal slice: LastSent.Text = %q", last.Text)
	}
}

func TestMockPoster_PostError(t *testing.T) {
	m := NewMockPoster()
	want := errors.New("channel_not_found")
	m.SetPostError(want)

	if err := m.Post(context.Background(), OutboundMessage{Text: "x"}); !errors.Is(err, want) {
		t.Fatalf("Post error = %v, want %v", err, want)
	}
	if m.SentCount() != 0 {
		t.Error("failed post should not be recorded")
	}

	m.SetPostError(nil)
	if err := m.Post(context.Background(), OutboundMessage{Text: "x"}); err != nil {
		t.Fatalf("Post after clearing error: %v", err)
	}
}

func TestMockPoster_BotUserID(t *testing.T) {
	m := NewMockPoster()
	if m.BotUserID() != "" {
		t.Error("default BotUserID should be empty")
	}
	m.SetBotUserID("U_BOT")
	if m.BotUserID() != "U_BOT" {
		t.Errorf("BotUserID = %q", m.BotUserID())
	}
}

func TestMockPoster_ConcurrentPosts(t *testing.T) {
	m := NewMockPoster()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Post(context.Background(), OutboundMessage{Text: "x"})
		}()
	}
	wg.Wait()
	if got := m.SentCount(); got != 50 {
		t.Errorf("SentCount = %d, want 50", got)
	}
}

func TestSessionID(t *testing.T) {
	tests := []struct {
		platform, channel, thread string
		want                      string
	}{
		{"slack", "C1", "1.1", "slack:C1:1.1"},
		{"slack", "C123", "1700000000.123", "slack:C123:1700000000.123"},
	}
	for _, tt := range tests {
		if got := SessionID(tt.platform, tt.channel, tt.thread); got != tt.want {
			t.Errorf("SessionID(%q, %q, %q) = %q, want %q", tt.platform, tt.channel, tt.thread, got, tt.want)
		}
	}

	if SessionID("slack", "C1", "1.1") == SessionID("slack", "C1", "1.2") {
		t.Error("distinct threads produced the same session id")
	}
}

func TestSessionID_SlackShapedIDsRoundTrip(t *testing.T) {
	for _, tc := range [][2]string{
		{"C1", "1.1"},
		{"C11", ".1"},
		{"C0123ABCD", "1700000000.000100"},
		{"D9", "1700000000.000100"},
	} {
		parts := strings.Split(SessionID("slack", tc[0], tc[1]), ":")
		if len(parts) != 3 || parts[1] != tc[0] || parts[2] != tc[1] {
			t.Errorf("SessionID for %v does not split back into its parts: %v", tc, parts)
		}
	}
}
