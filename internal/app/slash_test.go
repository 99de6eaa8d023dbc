package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSlashServer(t *testing.T, fx *commandsFixture) *Server {
	t.Helper()
	return &Server{
		log:      zap.NewNop(),
		commands: fx.commands,
	}
}

func postSlash(t *testing.T, srv *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/commands", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.handleSlashCommand(rec, req)
	return rec
}

func TestSlashCommandAcksImmediately(t *testing.T) {
	fx := newCommandsFixture(t, false)
	srv := newSlashServer(t, fx)

	delivered := make(chan string, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		delivered <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	rec := postSlash(t, srv, url.Values{
		"command":      {"/alpha"},
		"text":         {"what's in flight?"},
		"user_id":      {"U1"},
		"channel_id":   {"C1"},
		"response_url": {sink.URL},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var ack map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, "On it...", ack["text"])

	select {
	case body := <-delivered:
		assert.Contains(t, body, "fresh reply")
	case <-time.After(2 * time.Second):
		t.Fatal("result was never delivered to the response url")
	}
}

func TestSlashCommandUnknownNameIsAnsweredInline(t *testing.T) {
	fx := newCommandsFixture(t, false)
	srv := newSlashServer(t, fx)

	rec := postSlash(t, srv, url.Values{
		"command":    {"/made-up"},
		"user_id":    {"U1"},
		"channel_id": {"C1"},
	})

	require.Equal(t, http.StatusOK, rec.Code, "slash responses are always 200")
	assert.Contains(t, rec.Body.String(), "I don't know that command.")
}

func TestSlashCommandFailureStillReturnsOK(t *testing.T) {
	fx := newCommandsFixture(t, false)
	srv := newSlashServer(t, fx)

	delivered := make(chan string, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		delivered <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	rec := postSlash(t, srv, url.Values{
		"command":      {"/update-ticket"},
		"text":         {"no such thing: state=Done"},
		"user_id":      {"U1"},
		"channel_id":   {"C1"},
		"response_url": {sink.URL},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	select {
	case body := <-delivered:
		assert.Contains(t, body, "couldn't find an open ticket")
	case <-time.After(2 * time.Second):
		t.Fatal("failure text was never delivered")
	}
}
