// Package llm talks to the language-model provider over its Responses API.
// Chat turns are stateful on the provider side: each reply carries a response
// id which, passed back as previous_response_id, continues the conversation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alphamachine/gateway/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second

	ErrorCodeNotConfigured = "provider_not_configured"
	ErrorCodeRequestFailed = "provider_request_failed"
	ErrorCodeInvalidReply  = "provider_invalid_reply"
)

type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type ChatResult struct {
	Text       string
	ResponseID string
}

type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	Model           string
	MaxOutputTokens int
	Temperature     float64
}

type Client struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	model           string
	maxOutputTokens int
	temperature     float64
}

func NewClient(apiKey string, opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &Client{
		apiKey:          apiKey,
		baseURL:         baseURL,
		httpClient:      httpClient,
		model:           model,
		maxOutputTokens: opts.MaxOutputTokens,
		temperature:     opts.Temperature,
	}
}

type responsesRequest struct {
	Model              string      `json:"model"`
	Input              string      `json:"input"`
	Instructions       string      `json:"instructions,omitempty"`
	PreviousResponseID string      `json:"previous_response_id,omitempty"`
	MaxOutputTokens    int         `json:"max_output_tokens,omitempty"`
	Temperature        *float64    `json:"temperature,omitempty"`
	Text               *textFormat `json:"text,omitempty"`
}

type textFormat struct {
	Format struct {
		Type   string                 `json:"type"`
		Name   string                 `json:"name,omitempty"`
		Schema map[string]interface{} `json:"schema,omitempty"`
	} `json:"format"`
}

type responsesReply struct {
	ID     string `json:"id"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, req responsesRequest) (responsesReply, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return responsesReply{}, &ProviderError{Code: ErrorCodeNotConfigured, Message: "provider api key is required"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeRequestFailed, Message: "failed to encode provider request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeRequestFailed, Message: "failed to create provider request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeRequestFailed, Message: "provider request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeRequestFailed, Message: "failed to read provider response", Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return responsesReply{}, &ProviderError{
			Code:    ErrorCodeRequestFailed,
			Message: fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var reply responsesReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeInvalidReply, Message: "provider response is not valid json", Err: err}
	}
	if reply.Error != nil {
		return responsesReply{}, &ProviderError{Code: ErrorCodeRequestFailed, Message: reply.Error.Message}
	}
	return reply, nil
}

func (r responsesReply) text() string {
	var parts []string
	for _, item := range r.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				parts = append(parts, content.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Generate runs a one-shot completion with a system instruction.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	temp := c.temperature
	reply, err := c.call(ctx, responsesRequest{
		Model:           c.model,
		Input:           user,
		Instructions:    system,
		MaxOutputTokens: c.maxOutputTokens,
		Temperature:     &temp,
	})
	if err != nil {
		return "", err
	}
	text := reply.text()
	if text == "" {
		return "", &ProviderError{Code: ErrorCodeInvalidReply, Message: "provider response has empty content"}
	}
	return text, nil
}

// Chat continues the provider-side conversation identified by
// previousResponseID, or starts a fresh one when it is empty. The returned
// response id is the continuation token for the next turn.
func (c *Client) Chat(ctx context.Context, system, user, previousResponseID string) (ChatResult, error) {
	temp := c.temperature
	reply, err := c.call(ctx, responsesRequest{
		Model:              c.model,
		Input:              user,
		Instructions:       system,
		PreviousResponseID: previousResponseID,
		MaxOutputTokens:    c.maxOutputTokens,
		Temperature:        &temp,
	})
	if err != nil {
		return ChatResult{}, err
	}
	text := reply.text()
	if text == "" || reply.ID == "" {
		return ChatResult{}, &ProviderError{Code: ErrorCodeInvalidReply, Message: "provider response has no content or id"}
	}
	return ChatResult{Text: text, ResponseID: reply.ID}, nil
}

var ticketSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"tickets": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"issue_title":        map[string]interface{}{"type": "string"},
					"issue_description":  map[string]interface{}{"type": "string"},
					"project":            map[string]interface{}{"type": "string"},
					"assign_team_member": map[string]interface{}{"type": "string"},
					"priority":           map[string]interface{}{"type": "integer"},
					"time_estimate":      map[string]interface{}{"type": "integer"},
					"deadline":           map[string]interface{}{"type": "string"},
				},
				"required":             []string{"issue_title", "issue_description"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"tickets"},
	"additionalProperties": false,
}

// ExtractTickets asks the provider for structured ticket drafts.
func (c *Client) ExtractTickets(ctx context.Context, system, user string) ([]domain.TicketDraft, error) {
	format := &textFormat{}
	format.Format.Type = "json_schema"
	format.Format.Name = "ticket_extraction"
	format.Format.Schema = ticketSchema

	reply, err := c.call(ctx, responsesRequest{
		Model:           c.model,
		Input:           user,
		Instructions:    system,
		MaxOutputTokens: c.maxOutputTokens,
		Text:            format,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Tickets []domain.TicketDraft `json:"tickets"`
	}
	if err := json.Unmarshal([]byte(reply.text()), &parsed); err != nil {
		return nil, &ProviderError{Code: ErrorCodeInvalidReply, Message: "structured output is not valid json", Err: err}
	}
	return parsed.Tickets, nil
}
