// Package channel delivers outbound text to the chat platform.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSlackAPIBase = "https://slack.com/api"
	defaultSlackTimeout = 8 * time.Second
)

type SlackChannel struct {
	botToken   string
	apiBase    string
	httpClient *http.Client
}

type SlackOptions struct {
	APIBase    string
	HTTPClient *http.Client
}

func NewSlackChannel(botToken string, opts SlackOptions) *SlackChannel {
	apiBase := strings.TrimRight(strings.TrimSpace(opts.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultSlackAPIBase
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSlackTimeout}
	}
	return &SlackChannel{botToken: botToken, apiBase: apiBase, httpClient: httpClient}
}

func (c *SlackChannel) Name() string {
	return "slack"
}

// SendEphemeral posts a message visible only to the given user.
func (c *SlackChannel) SendEphemeral(ctx context.Context, channelID, userID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.callAPI(ctx, "chat.postEphemeral", map[string]interface{}{
		"channel": channelID,
		"user":    userID,
		"text":    text,
	})
}

// SendMessage posts a regular channel message.
func (c *SlackChannel) SendMessage(ctx context.Context, channelID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.callAPI(ctx, "chat.postMessage", map[string]interface{}{
		"channel": channelID,
		"text":    text,
	})
}

func (c *SlackChannel) callAPI(ctx context.Context, method string, body map[string]interface{}) error {
	if c.botToken == "" {
		return fmt.Errorf("channel slack requires a bot token")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode slack %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack %s request: %w", method, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.botToken)
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("slack %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return fmt.Errorf("read slack %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack %s returned status %d", method, resp.StatusCode)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("decode slack %s response: %w", method, err)
	}
	if !result.OK {
		return fmt.Errorf("slack %s failed: %s", method, result.Error)
	}
	return nil
}

// PostResponseURL answers a slash command through its response_url. Slack
// treats "ephemeral" and "in_channel" as the two visibility modes.
func PostResponseURL(ctx context.Context, httpClient *http.Client, responseURL, text string, ephemeral bool) error {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSlackTimeout}
	}
	responseType := "in_channel"
	if ephemeral {
		responseType = "ephemeral"
	}
	payload, err := json.Marshal(map[string]string{
		"response_type": responseType,
		"text":          text,
	})
	if err != nil {
		return fmt.Errorf("encode response_url payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create response_url request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("response_url request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("response_url returned status %d", resp.StatusCode)
	}
	return nil
}
