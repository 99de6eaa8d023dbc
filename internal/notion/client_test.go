package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPagesParsesTitles(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ntn_token", r.Header.Get("Authorization"))
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Acme", req["query"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"id":  "page-1",
					"url": "https://notion.so/page-1",
					"properties": map[string]interface{}{
						"title": map[string]interface{}{
							"title": []map[string]string{{"plain_text": "Acme status"}},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient("ntn_token", Options{BaseURL: server.URL})
	pages, err := client.SearchPages(context.Background(), "Acme")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Acme status", pages[0].Title)
	assert.Equal(t, "https://notion.so/page-1", pages[0].URL)
}

func TestSearchPagesSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient("bad", Options{BaseURL: server.URL})
	_, err := client.SearchPages(context.Background(), "Acme")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ErrorCodeRequestFailed, apiErr.Code)
	assert.Contains(t, apiErr.Message, "401")
}
