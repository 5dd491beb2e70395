// Package slack publishes daily and weekly nutrition reports through an
// incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	webhookURL string
	username   string
	httpClient doer
}

func NewClient(webhookURL string, httpClient doer) *Client {
	return &Client{
		webhookURL: webhookURL,
		username:   "nutrilog",
		httpClient: httpClient,
	}
}

type payload struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
	Mrkdwn   bool   `json:"mrkdwn"`
}

// PostMessage sends message to channel. The text may use Slack mrkdwn.
func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("refusing to post an empty message")
	}

	body, err := json.Marshal(payload{
		Channel:  channel,
		Username: c.username,
		Text:     message,
		Mrkdwn:   true,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		slog.Debug("SLACK: message posted", "channel", channel, "bytes", len(message))
		return nil
	case http.StatusTooManyRequests:
		return fmt.Errorf("failed to post message: rate limited, retry after %ss", resp.Header.Get("Retry-After"))
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return fmt.Errorf("failed to post message: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		}
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
}

// LogNotifier writes messages to the structured log. It stands in for the
// webhook when none is configured.
type LogNotifier struct{}

func (LogNotifier) PostMessage(ctx context.Context, channel string, message string) error {
	slog.Info("SLACK: webhook not configured, logging report", "channel", channel, "message", message)
	return nil
}
