package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(handled *bool) http.Handler {
	return NewRouter(RouterConfig{
		SigningSecret: "secret",
		Version:       "test",
	}, Handlers{
		Command: func(w http.ResponseWriter, _ *http.Request) {
			if handled != nil {
				*handled = true
			}
			w.WriteHeader(http.StatusOK)
		},
	})
}

func TestHealthzIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestVersionIsPublic(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"test"`)
}

func TestSlackCommandsRejectsUnsignedRequests(t *testing.T) {
	handled := false
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader("command=%2Falpha"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	newTestRouter(&handled).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, handled)
}

func TestSlackCommandsAcceptsSignedRequests(t *testing.T) {
	handled := false
	body := url.Values{"command": {"/alpha"}, "text": {"hello"}}.Encode()
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("v0:" + ts + ":" + body))
	signature := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", signature)

	rec := httptest.NewRecorder()
	newTestRouter(&handled).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, handled)
}
