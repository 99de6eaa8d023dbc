package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/service/contextmgr"
	"alphamachine/gateway/internal/service/conversation"
	"alphamachine/gateway/internal/service/orchestrator"
	"alphamachine/gateway/internal/service/ports"
	"alphamachine/gateway/internal/workspace"
)

// ProcessingLogger records one row per command invocation; the store satisfies
// it directly.
type ProcessingLogger interface {
	InsertProcessingLog(ctx context.Context, flow, status, detail string, duration time.Duration) error
}

// SummaryStore persists generated output back into the datastore.
type SummaryStore interface {
	StoreMeetingSummary(ctx context.Context, meetingDate, summary string) (string, error)
	PutClientStatus(ctx context.Context, status domain.ClientStatus) error
}

type CommandsDependencies struct {
	Context      *contextmgr.Service
	Conversation *conversation.Service
	Generator    ports.Generator
	Orchestrator *orchestrator.Service
	Log          ProcessingLogger
	Summaries    SummaryStore
	Logger       *zap.Logger
	Now          func() time.Time
}

// Commands turns one instruction into one response. Every failure is folded
// into user-facing text; the transport never sees an error from here.
type Commands struct {
	deps CommandsDependencies
}

func NewCommands(deps CommandsDependencies) *Commands {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Commands{deps: deps}
}

func (c *Commands) Handle(ctx context.Context, instr domain.Instruction) domain.Response {
	start := c.deps.Now()
	resp, err := c.run(ctx, instr)

	status, detail := "succeeded", ""
	if err != nil {
		status, detail = "failed", err.Error()
		resp = domain.Response{Text: errorText(err), Ephemeral: true}
		c.deps.Logger.Warn("command failed",
			zap.String("command", string(instr.Kind)),
			zap.String("user_id", instr.UserID),
			zap.Error(err))
	}
	if c.deps.Log != nil {
		if logErr := c.deps.Log.InsertProcessingLog(ctx, string(instr.Kind), status, detail, c.deps.Now().Sub(start)); logErr != nil {
			c.deps.Logger.Warn("processing log write failed", zap.Error(logErr))
		}
	}
	return resp
}

func (c *Commands) run(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	switch instr.Kind {
	case domain.CommandChat:
		return c.chat(ctx, instr)
	case domain.CommandSummarizeMeeting:
		return c.summarizeMeeting(ctx, instr)
	case domain.CommandSummarizeClient:
		return c.summarizeClient(ctx, instr)
	case domain.CommandCreateTicket:
		return c.createTicket(ctx, instr)
	case domain.CommandUpdateTicket:
		return c.updateTicket(ctx, instr)
	case domain.CommandTeamMember:
		return c.teamMember(ctx, instr)
	case domain.CommandWeeklySummary:
		return c.weeklySummary(ctx, instr)
	case domain.CommandClearConversation:
		return c.clearConversation(ctx, instr)
	default:
		return domain.Response{}, fmt.Errorf("%w: %q", contextmgr.ErrUnknownCommand, instr.Kind)
	}
}

func (c *Commands) chat(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandChat, contextmgr.Args{
		UserID:    instr.UserID,
		ChannelID: instr.ChannelID,
	})
	if err != nil {
		return domain.Response{}, err
	}

	previous := c.deps.Conversation.ContinuationToken(ctx, instr.UserID, instr.ChannelID)
	result, err := c.deps.Generator.Chat(ctx, systemPromptFor(domain.CommandChat, snapshot), instr.Text, previous)
	if err != nil {
		return domain.Response{}, err
	}
	if result.ResponseID != "" {
		if err := c.deps.Conversation.Remember(ctx, instr.UserID, instr.ChannelID, result.ResponseID); err != nil {
			c.deps.Logger.Warn("conversation save failed",
				zap.String("user_id", instr.UserID), zap.Error(err))
		}
	}
	return domain.Response{Text: result.Text}, nil
}

func (c *Commands) summarizeMeeting(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandSummarizeMeeting, contextmgr.Args{
		UserID:           instr.UserID,
		ChannelID:        instr.ChannelID,
		MeetingTimestamp: strings.TrimSpace(instr.Text),
	})
	if err != nil {
		return domain.Response{}, err
	}
	if snapshot.SpecificMeeting == nil {
		return domain.Response{Text: snapshot.NotFound["meeting"], Ephemeral: true}, nil
	}

	summary, err := c.deps.Generator.Generate(ctx, systemPromptFor(domain.CommandSummarizeMeeting, snapshot), "Summarize this meeting.")
	if err != nil {
		return domain.Response{}, err
	}
	if c.deps.Summaries != nil {
		if _, err := c.deps.Summaries.StoreMeetingSummary(ctx, snapshot.SpecificMeeting.MeetingDate, summary); err != nil {
			c.deps.Logger.Warn("meeting summary save failed", zap.Error(err))
		}
	}
	return domain.Response{Text: summary}, nil
}

func (c *Commands) summarizeClient(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	clientName := strings.TrimSpace(instr.Text)
	if clientName == "" {
		return domain.Response{Text: "Which client? Try: /client-summary Acme", Ephemeral: true}, nil
	}

	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandSummarizeClient, contextmgr.Args{
		UserID:     instr.UserID,
		ChannelID:  instr.ChannelID,
		ClientName: clientName,
	})
	if err != nil {
		return domain.Response{}, err
	}
	if note, ok := snapshot.NotFound["client"]; ok {
		return domain.Response{Text: note, Ephemeral: true}, nil
	}

	summary, err := c.deps.Generator.Generate(ctx, systemPromptFor(domain.CommandSummarizeClient, snapshot), "Summarize this client's status.")
	if err != nil {
		return domain.Response{}, err
	}
	if c.deps.Summaries != nil {
		if err := c.deps.Summaries.PutClientStatus(ctx, domain.ClientStatus{ClientName: clientName, Summary: summary}); err != nil {
			c.deps.Logger.Warn("client status save failed", zap.String("client", clientName), zap.Error(err))
		}
	}
	return domain.Response{Text: summary}, nil
}

func (c *Commands) createTicket(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandCreateTicket, contextmgr.Args{
		UserID:    instr.UserID,
		ChannelID: instr.ChannelID,
	})
	if err != nil {
		return domain.Response{}, err
	}

	drafts, err := c.deps.Generator.ExtractTickets(ctx, systemPromptFor(domain.CommandCreateTicket, snapshot), instr.Text)
	if err != nil {
		return domain.Response{}, err
	}
	if len(drafts) == 0 {
		return domain.Response{Text: "I couldn't find a ticket to create in that. Describe the work item and who it's for.", Ephemeral: true}, nil
	}

	var lines []string
	for _, draft := range drafts {
		result, err := c.deps.Orchestrator.ExecuteCreate(ctx, draft)
		if err != nil {
			return domain.Response{}, err
		}
		if result.Preview != nil {
			lines = append(lines, fmt.Sprintf("Would create: %s (writes are disabled)", describeDraft(result.Preview.Draft)))
			continue
		}
		lines = append(lines, fmt.Sprintf("Created %s: %s", result.Issue.Identifier, result.Issue.Title))
	}
	return domain.Response{Text: strings.Join(lines, "\n")}, nil
}

func (c *Commands) updateTicket(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	reference, instruction, ok := splitUpdateText(instr.Text)
	if !ok {
		return domain.Response{Text: "Tell me which ticket and what to change. Try: /update-ticket ALP-12: state=Done", Ephemeral: true}, nil
	}

	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandUpdateTicket, contextmgr.Args{
		UserID:    instr.UserID,
		ChannelID: instr.ChannelID,
	})
	if err != nil {
		return domain.Response{}, err
	}

	var issues []domain.Issue
	if snapshot.Workspace != nil {
		issues = snapshot.Workspace.ActiveIssues()
	}

	result, err := c.deps.Orchestrator.ExecuteUpdate(ctx, reference, parseUpdateFields(instruction), issues)
	if err != nil {
		return domain.Response{}, err
	}
	if result.Preview != nil {
		return domain.Response{Text: fmt.Sprintf("Would update %s: %s (writes are disabled)", result.Issue.Identifier, instruction)}, nil
	}
	return domain.Response{Text: fmt.Sprintf("Updated %s: %s", result.Issue.Identifier, result.Issue.Title)}, nil
}

func (c *Commands) teamMember(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	memberName := strings.TrimSpace(instr.Text)
	if memberName == "" {
		return domain.Response{Text: "Which team member? Try: /team-member Diana", Ephemeral: true}, nil
	}

	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandTeamMember, contextmgr.Args{
		UserID:     instr.UserID,
		ChannelID:  instr.ChannelID,
		MemberName: memberName,
	})
	if err != nil {
		return domain.Response{}, err
	}
	if snapshot.Member == nil {
		return domain.Response{Text: snapshot.NotFound["member"], Ephemeral: true}, nil
	}

	text, err := c.deps.Generator.Generate(ctx, systemPromptFor(domain.CommandTeamMember, snapshot), "Summarize this team member's work.")
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Text: text}, nil
}

func (c *Commands) weeklySummary(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	snapshot, err := c.deps.Context.BuildContext(ctx, domain.CommandWeeklySummary, contextmgr.Args{
		UserID:    instr.UserID,
		ChannelID: instr.ChannelID,
	})
	if err != nil {
		return domain.Response{}, err
	}

	text, err := c.deps.Generator.Generate(ctx, systemPromptFor(domain.CommandWeeklySummary, snapshot), "Write the weekly digest.")
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Text: text}, nil
}

func (c *Commands) clearConversation(ctx context.Context, instr domain.Instruction) (domain.Response, error) {
	if err := c.deps.Conversation.Forget(ctx, instr.UserID, instr.ChannelID); err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Text: "Conversation cleared. The next /alpha starts fresh.", Ephemeral: true}, nil
}

// splitUpdateText splits "ALP-12: mark it done" into reference and
// instruction.
func splitUpdateText(text string) (reference, instruction string, ok bool) {
	reference, instruction, found := strings.Cut(text, ":")
	reference = strings.TrimSpace(reference)
	instruction = strings.TrimSpace(instruction)
	if !found || reference == "" || instruction == "" {
		return "", "", false
	}
	return reference, instruction, true
}

// parseUpdateFields reads "state=Done priority=2" style instructions into a
// field map; free-form text becomes a description change.
func parseUpdateFields(instruction string) map[string]string {
	fields := map[string]string{}
	for _, token := range strings.Fields(instruction) {
		key, value, found := strings.Cut(token, "=")
		if !found || value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "state", "priority", "estimate", "title", "assignee":
			fields[strings.ToLower(key)] = value
		}
	}
	if len(fields) == 0 {
		fields["description"] = instruction
	}
	return fields
}

func describeDraft(draft domain.TicketDraft) string {
	parts := []string{draft.Title}
	if draft.Assignee != "" {
		parts = append(parts, "for "+draft.Assignee)
	}
	if draft.Estimate > 0 {
		parts = append(parts, strconv.Itoa(draft.Estimate)+"pt")
	}
	return strings.Join(parts, ", ")
}

// errorText maps a pipeline failure to the text the user sees. The transport
// always returns 200; these strings are the whole error surface.
func errorText(err error) string {
	var violation *workspace.SafetyViolationError
	if errors.As(err, &violation) {
		return "That write was blocked: the mutation credential failed the safety check. Nothing was sent to the tracker."
	}

	var unavailable *contextmgr.ContextUnavailableError
	if errors.As(err, &unavailable) {
		return fmt.Sprintf("I couldn't load the %s context right now. Try again in a minute.", unavailable.Source)
	}

	var ambiguous *orchestrator.AmbiguousTargetError
	if errors.As(err, &ambiguous) {
		if len(ambiguous.Candidates) == 0 {
			return fmt.Sprintf("I couldn't find an open ticket matching %q. Use the ticket identifier, e.g. ALP-12.", ambiguous.Reference)
		}
		var ids []string
		for _, issue := range ambiguous.Candidates {
			ids = append(ids, fmt.Sprintf("%s (%s)", issue.Identifier, issue.Title))
		}
		return fmt.Sprintf("%q matches more than one ticket: %s. Be more specific.", ambiguous.Reference, strings.Join(ids, ", "))
	}

	var upstream *orchestrator.UpstreamError
	if errors.As(err, &upstream) {
		return fmt.Sprintf("The tracker rejected that change: %v. Nothing was retried; check the ticket and try again.", upstream.Unwrap())
	}

	if errors.Is(err, contextmgr.ErrUnknownCommand) {
		return "I don't know that command."
	}

	return "Something went wrong handling that. It's been logged."
}
