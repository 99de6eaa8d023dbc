package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alphamachine/gateway/internal/channel"
	"alphamachine/gateway/internal/domain"
)

const (
	socketModeOpenURL        = "https://slack.com/api/apps.connections.open"
	socketModeReconnectMin   = 1 * time.Second
	socketModeReconnectMax   = 30 * time.Second
	socketModeReadTimeout    = 90 * time.Second
	socketModeWriteTimeout   = 10 * time.Second
	socketModeDialTimeout    = 10 * time.Second
	socketModeMaxPayloadSize = 1 << 20
)

var errSocketModeDisconnect = errors.New("socket mode disconnect requested")

type socketEnvelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload"`
	Reason     string          `json:"reason,omitempty"`
}

type slashPayload struct {
	Command     string `json:"command"`
	Text        string `json:"text"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	ResponseURL string `json:"response_url"`
}

// RunSocketMode keeps a Socket Mode session alive until the context ends,
// reconnecting with exponential backoff. It is a no-op without an app token;
// the signed webhook remains the only inbound path then.
func (s *Server) RunSocketMode(ctx context.Context) {
	if s.cfg.Slack.AppToken == "" {
		s.log.Info("socket mode disabled, no app token configured")
		return
	}

	backoff := socketModeReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.runSocketModeSession(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Warn("socket mode session ended", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
		if backoff < socketModeReconnectMax {
			backoff *= 2
			if backoff > socketModeReconnectMax {
				backoff = socketModeReconnectMax
			}
		}
	}
}

func (s *Server) runSocketModeSession(ctx context.Context) error {
	wsURL, err := openSocketModeConnection(ctx, s.cfg.Slack.AppToken)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: socketModeDialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode gateway: %w", err)
	}
	defer conn.Close()

	s.log.Info("socket mode connected")

	var writeMu sync.Mutex
	ack := func(envelopeID string, payload interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.SetWriteDeadline(time.Now().Add(socketModeWriteTimeout)); err != nil {
			return err
		}
		body := map[string]interface{}{"envelope_id": envelopeID}
		if payload != nil {
			body["payload"] = payload
		}
		return conn.WriteJSON(body)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(socketModeReadTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var envelope socketEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case "hello":
			continue
		case "disconnect":
			return fmt.Errorf("%w: %s", errSocketModeDisconnect, envelope.Reason)
		case "slash_commands":
			var payload slashPayload
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				s.log.Warn("socket mode payload unreadable", zap.Error(err))
				continue
			}
			if err := ack(envelope.EnvelopeID, map[string]string{
				"response_type": "ephemeral",
				"text":          "On it...",
			}); err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
			s.dispatchSocketCommand(payload)
		default:
			if envelope.EnvelopeID != "" {
				if err := ack(envelope.EnvelopeID, nil); err != nil {
					return fmt.Errorf("ack envelope: %w", err)
				}
			}
		}
	}
}

func (s *Server) dispatchSocketCommand(payload slashPayload) {
	kind, known := slashCommands[strings.TrimSpace(payload.Command)]
	if !known {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), socketModeWriteTimeout)
			defer cancel()
			var err error
			if payload.ResponseURL == "" {
				err = s.messenger.SendEphemeral(ctx, payload.ChannelID, payload.UserID, "I don't know that command.")
			} else {
				err = channel.PostResponseURL(ctx, http.DefaultClient, payload.ResponseURL, "I don't know that command.", true)
			}
			if err != nil {
				s.log.Warn("unknown command reply failed", zap.Error(err))
			}
		}()
		return
	}

	go s.deliverSlashResult(domain.Instruction{
		Kind:      kind,
		Text:      strings.TrimSpace(payload.Text),
		UserID:    payload.UserID,
		ChannelID: payload.ChannelID,
	}, payload.ResponseURL)
}

func openSocketModeConnection(ctx context.Context, appToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, socketModeOpenURL, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("build connections.open request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request connections.open: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, socketModeMaxPayloadSize))
	if err != nil {
		return "", fmt.Errorf("read connections.open response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("connections.open returned status %d", resp.StatusCode)
	}

	var payload struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode connections.open response: %w", err)
	}
	if !payload.OK {
		return "", fmt.Errorf("connections.open rejected: %s", payload.Error)
	}
	if strings.TrimSpace(payload.URL) == "" {
		return "", errors.New("connections.open response missing url")
	}
	return payload.URL, nil
}
