// Package agent talks to the hosted conversational agent: it sends chat
// messages into agent sessions, fetches stored responses, and verifies
// and decodes the webhooks the agent calls back with.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the hosted agent API.
	DefaultBaseURL = "https://www.rooaak.com"

	// StatusResponded marks a message the agent has already answered.
	StatusResponded = "responded"

	defaultHTTPTimeout = 20 * time.Second
	messagesPath       = "/api/v1/messages"
	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// ChannelRef maps an agent session back to a chat thread.
type ChannelRef struct {
	Type              string `json:"type,omitempty"`
	ExternalChannelID string `json:"externalChannelId,omitempty"`
	ExternalThreadID  string `json:"externalThreadId,omitempty"`
	ExternalMessageID string `json:"externalMessageId,omitempty"`
	ExternalUserID    string `json:"externalUserId,omitempty"`
}

// Metadata travels with a message and is echoed back on webhooks.
type Metadata struct {
	CorrelationID string      `json:"correlationId,omitempty"`
	Channel       *ChannelRef `json:"channel,omitempty"`
}

// SendRequest is the body of a send-message call. An empty AgentID is
// filled from the client.
type SendRequest struct {
	AgentID   string   `json:"agentId"`
	SessionID string   `json:"sessionId"`
	Message   string   `json:"message"`
	Metadata  Metadata `json:"metadata"`
}

// SendResult is the agent's answer to a send. Response is set only when
// the agent replied synchronously.
type SendResult struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Response  string `json:"response,omitempty"`
}

// Responded reports whether r carries a synchronous reply to deliver.
func (r *SendResult) Responded() bool {
	return r != nil && r.Status == StatusResponded && r.Response != ""
}

// Message is a stored agent message.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Status    string `json:"status"`
	Response  string `json:"response,omitempty"`
}

// APIError is returned for any non-2xx answer from the agent API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent: api error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("agent: api error (status %d): %s", e.StatusCode, e.Message)
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	APIKey      string        // bearer token for the agent API
	BaseURL     string        // default DefaultBaseURL
	AgentID     string        // agent that receives sent messages
	HTTPTimeout time.Duration // per-call timeout (default 20s)
	// For testing: inject an HTTP client (e.g. one bound to httptest).
	HTTPClient *http.Client
}

// Client calls the agent REST API.
type Client struct {
	apiKey  string
	baseURL string
	agentID string
	http    *http.Client
}

// NewClient creates an agent API client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("agent: api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("agent: invalid base url %q: %w", opts.BaseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		agentID: opts.AgentID,
		http:    httpClient,
	}, nil
}

// AgentID returns the agent messages are sent to by default.
func (c *Client) AgentID() string { return c.agentID }

// SendMessage posts req into the agent session. idempotencyKey lets the
// agent collapse retries of the same chat event.
func (c *Client) SendMessage(ctx context.Context, req SendRequest, idempotencyKey string) (*SendResult, error) {
	if req.AgentID == "" {
		req.AgentID = c.agentID
	}
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent: send message: agent id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("agent: send message: marshal: %w", err)
	}

	header := http.Header{}
	if idempotencyKey != "" {
		header.Set("Idempotency-Key", idempotencyKey)
	}

	var result SendResult
	if err := c.do(ctx, http.MethodPost, messagesPath, header, body, &result); err != nil {
		return nil, fmt.Errorf("agent: send message: %w", err)
	}
	return &result, nil
}

// GetMessage fetches a stored message by id.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, fmt.Errorf("agent: get message: id is required")
	}

	var msg Message
	path := messagesPath + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &msg); err != nil {
		return nil, fmt.Errorf("agent: get message %s: %w", id, err)
	}
	if msg.ID == "" {
		msg.ID = id
	}
	return &msg, nil
}

// do performs an authenticated JSON call and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body, accepting
// {"error":"..."}, {"error":{"message":"..."}} and {"message":"..."}.
func errorMessage(data []byte) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		var s string
		if json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
