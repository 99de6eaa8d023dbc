// Package notion fetches document-workspace pages. Read-only.
package notion

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
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
	defaultTimeout = 10 * time.Second

	ErrorCodeRequestFailed = "notion_request_failed"
	ErrorCodeInvalidReply  = "notion_invalid_reply"
)

type APIError struct {
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(token string, opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{token: token, baseURL: baseURL, httpClient: httpClient}
}

type searchResponse struct {
	Results []struct {
		ID             string `json:"id"`
		URL            string `json:"url"`
		LastEditedTime string `json:"last_edited_time"`
		Properties     map[string]struct {
			Title []struct {
				PlainText string `json:"plain_text"`
			} `json:"title"`
		} `json:"properties"`
	} `json:"results"`
}

// SearchPages returns pages matching the query, typically a client name.
func (c *Client) SearchPages(ctx context.Context, query string) ([]domain.Page, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":  query,
		"filter": map[string]string{"property": "object", "value": "page"},
	})
	if err != nil {
		return nil, &APIError{Code: ErrorCodeRequestFailed, Message: "failed to encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, &APIError{Code: ErrorCodeRequestFailed, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Notion-Version", notionVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Code: ErrorCodeRequestFailed, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, &APIError{Code: ErrorCodeRequestFailed, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Code:    ErrorCodeRequestFailed,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var parsed searchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &APIError{Code: ErrorCodeInvalidReply, Message: "response is not valid json", Err: err}
	}

	var pages []domain.Page
	for _, result := range parsed.Results {
		page := domain.Page{
			ID:           result.ID,
			URL:          result.URL,
			LastEditedAt: result.LastEditedTime,
		}
		for _, prop := range result.Properties {
			if len(prop.Title) > 0 {
				page.Title = prop.Title[0].PlainText
				break
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}
