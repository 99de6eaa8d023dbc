package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"alphamachine/gateway/internal/channel"
	"alphamachine/gateway/internal/domain"
)

// slashCommands maps the registered Slack command names to command kinds.
var slashCommands = map[string]domain.CommandKind{
	"/alpha":           domain.CommandChat,
	"/meeting-summary": domain.CommandSummarizeMeeting,
	"/client-summary":  domain.CommandSummarizeClient,
	"/create-ticket":   domain.CommandCreateTicket,
	"/update-ticket":   domain.CommandUpdateTicket,
	"/team-member":     domain.CommandTeamMember,
	"/weekly-summary":  domain.CommandWeeklySummary,
	"/clear-chat":      domain.CommandClearConversation,
}

const slashExecuteTimeout = 60 * time.Second

// handleSlashCommand acks the slash payload immediately and runs the command
// in the background, delivering the result through the response URL. Slack
// drops the original request after three seconds; everything the user sees
// after the ack goes through that URL.
func (s *Server) handleSlashCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	command := strings.TrimSpace(r.PostFormValue("command"))
	kind, known := slashCommands[command]
	instr := domain.Instruction{
		Kind:      kind,
		Text:      strings.TrimSpace(r.PostFormValue("text")),
		UserID:    r.PostFormValue("user_id"),
		ChannelID: r.PostFormValue("channel_id"),
	}
	responseURL := r.PostFormValue("response_url")

	w.Header().Set("Content-Type", "application/json")
	if !known {
		json.NewEncoder(w).Encode(map[string]string{
			"response_type": "ephemeral",
			"text":          "I don't know that command.",
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"response_type": "ephemeral",
		"text":          "On it...",
	})

	go s.deliverSlashResult(instr, responseURL)
}

func (s *Server) deliverSlashResult(instr domain.Instruction, responseURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), slashExecuteTimeout)
	defer cancel()

	resp := s.Execute(ctx, instr)
	if responseURL == "" {
		var err error
		if resp.Ephemeral {
			err = s.messenger.SendEphemeral(ctx, instr.ChannelID, instr.UserID, resp.Text)
		} else {
			err = s.messenger.SendMessage(ctx, instr.ChannelID, resp.Text)
		}
		if err != nil {
			s.log.Warn("slash result delivery failed",
				zap.String("command", string(instr.Kind)), zap.Error(err))
		}
		return
	}
	if err := channel.PostResponseURL(ctx, http.DefaultClient, responseURL, resp.Text, resp.Ephemeral); err != nil {
		s.log.Warn("response url delivery failed",
			zap.String("command", string(instr.Kind)), zap.Error(err))
	}
}
