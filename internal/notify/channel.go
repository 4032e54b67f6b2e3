package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Channel delivers rendered content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// Payload formats understood by WebhookChannel.
const (
	FormatFlow = "flow"
	FormatText = "text"
)

// flowPayload is the body accepted by the chat workflow trigger.
type flowPayload struct {
	ChannelID string `json:"channelId"`
	TeamID    string `json:"teamId"`
	Message   string `json:"message"`
}

type textPayload struct {
	MsgType string   `json:"msgtype"`
	Text    textBody `json:"text"`
}

type textBody struct {
	Content string `json:"content"`
}

// WebhookChannel posts notifications to an HTTP endpoint.
type WebhookChannel struct {
	url       string
	format    string
	teamID    string
	channelID string
	client    *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithFlowTarget sets the team and channel ids sent in flow payloads.
func WithFlowTarget(teamID, channelID string) WebhookOption {
	return func(ch *WebhookChannel) {
		ch.teamID = teamID
		ch.channelID = channelID
	}
}

// WithFormat selects the payload shape.
func WithFormat(format string) WebhookOption {
	return func(ch *WebhookChannel) {
		if format != "" {
			ch.format = format
		}
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(url string, opts ...WebhookOption) (*WebhookChannel, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	channel := &WebhookChannel{
		url:    url,
		format: FormatFlow,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(channel)
	}
	if channel.format != FormatFlow && channel.format != FormatText {
		return nil, fmt.Errorf("webhook channel: unknown format %q", channel.format)
	}
	return channel, nil
}

// Send posts the content. Deadlines come from ctx.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	if w == nil || w.url == "" {
		return errors.New("webhook channel: empty url")
	}
	var payload any
	switch w.format {
	case FormatText:
		payload = textPayload{MsgType: "text", Text: textBody{Content: content}}
	default:
		payload = flowPayload{ChannelID: w.channelID, TeamID: w.teamID, Message: content}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
