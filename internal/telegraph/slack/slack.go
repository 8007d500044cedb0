// Package slack implements the Slack side of the relay: request signature
// verification, Events API envelope parsing and normalization, and posting
// replies with the Web API.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/signalbox/internal/telegraph"
	"golang.org/x/time/rate"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// defaultHTTPTimeout bounds a single Web API call.
	defaultHTTPTimeout = 20 * time.Second
	// defaultRate is Slack's documented chat.postMessage budget per channel.
	defaultRate = 1.0
	// defaultBurst lets a short run of replies through without waiting.
	defaultBurst = 5
	// limiterIdle is how long a channel's bucket survives without posts.
	limiterIdle = 10 * time.Minute
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Poster implements telegraph.Poster for the Slack Web API.
type Poster struct {
	client slackClient
	rate   rate.Limit
	burst  int
	now    func() time.Time

	mu        sync.Mutex
	botUserID string
	limiters  map[string]*channelLimiter
	lastSweep time.Time
}

// channelLimiter is one channel's post budget.
type channelLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

// PosterOpts holds parameters for creating a Slack Poster.
type PosterOpts struct {
	BotToken      string        // xoxb-... Slack bot token
	APIURL        string        // optional Web API base, e.g. "https://slack.com/api/"
	HTTPTimeout   time.Duration // per-call timeout (default 20s)
	RatePerSecond float64       // client-side post budget per channel (default 1/s)
	Burst         int           // per-channel token bucket size (default 5)
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewPoster creates a Slack Poster.
func NewPoster(opts PosterOpts) (*Poster, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}

	client := opts.Client
	if client == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		apiOpts := []slackapi.Option{
			slackapi.OptionHTTPClient(&http.Client{Timeout: timeout}),
		}
		if opts.APIURL != "" {
			apiURL := opts.APIURL
			if !strings.HasSuffix(apiURL, "/") {
				apiURL += "/"
			}
			apiOpts = append(apiOpts, slackapi.OptionAPIURL(apiURL))
		}
		client = slackapi.New(opts.BotToken, apiOpts...)
	}

	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = defaultRate
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Poster{
		client:   client,
		rate:     rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*channelLimiter),
	}, nil
}

// Connect validates the bot token and records the bot's own user ID for
// self-message filtering.
func (p *Poster) Connect(ctx context.Context) error {
	auth, err := p.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	p.mu.Lock()
	p.botUserID = auth.UserID
	p.mu.Unlock()
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (p *Poster) BotUserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.botUserID
}

// Post sends msg with chat.postMessage. Slack's error string (for example
// "channel_not_found") is preserved in the returned error.
func (p *Poster) Post(ctx context.Context, msg telegraph.OutboundMessage) error {
	if msg.ChannelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	if err := p.limiterFor(msg.ChannelID).Wait(ctx); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}

	options := buildMessageOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := p.client.PostMessageContext(ctx, msg.ChannelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// limiterFor returns channelID's bucket, creating it on first use. Buckets
// idle longer than limiterIdle are evicted at most once per minute.
func (p *Poster) limiterFor(channelID string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) >= time.Minute {
		for id, l := range p.limiters {
			if now.Sub(l.lastUsed) > limiterIdle {
				delete(p.limiters, id)
			}
		}
		p.lastSweep = now
	}

	l, ok := p.limiters[channelID]
	if !ok {
		l = &channelLimiter{Limiter: rate.NewLimiter(p.rate, p.burst)}
		p.limiters[channelID] = l
	}
	l.lastUsed = now
	return l.Limiter
}

// buildMessageOptions translates an OutboundMessage into Slack MsgOptions.
// Unfurling is disabled so agent replies do not expand links.
func buildMessageOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	options := []slackapi.MsgOption{
		slackapi.MsgOptionText(msg.Text, false),
		slackapi.MsgOptionDisableLinkUnfurl(),
		slackapi.MsgOptionDisableMediaUnfurl(),
	}

	// Thread reply.
	if msg.ThreadID != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadID))
	}

	return options
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

var (
	_ telegraph.Poster      = (*Poster)(nil)
	_ telegraph.BotUserIDer = (*Poster)(nil)
)
