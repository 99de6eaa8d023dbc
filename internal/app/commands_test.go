package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/llm"
	"alphamachine/gateway/internal/service/adapters"
	"alphamachine/gateway/internal/service/contextmgr"
	"alphamachine/gateway/internal/service/conversation"
	"alphamachine/gateway/internal/service/orchestrator"
	"alphamachine/gateway/internal/workspace"
)

type commandsFixture struct {
	commands *Commands
	writer   *fakeWriter
	sessions *fakeSessions
	logs     *fakeLogs
}

type fakeWriter struct {
	mu          sync.Mutex
	createCalls int
	updateCalls int
	lastTarget  string
	err         error
}

func (w *fakeWriter) CreateIssue(_ context.Context, _ workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.createCalls++
	if w.err != nil {
		return domain.Issue{}, w.err
	}
	return domain.Issue{ID: "uuid-new", Identifier: "ALP-200", Title: draft.Title}, nil
}

func (w *fakeWriter) UpdateIssue(_ context.Context, _ workspace.WriteCapability, issueID string, _ map[string]string) (domain.Issue, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.updateCalls++
	w.lastTarget = issueID
	if w.err != nil {
		return domain.Issue{}, w.err
	}
	return domain.Issue{ID: issueID, Identifier: "ALP-101", Title: "Fix login redirect loop"}, nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]string
}

func (f *fakeSessions) get(_ context.Context, userID, channelID string) (domain.SessionInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.rows[userID+"_"+channelID]
	if !ok {
		return domain.SessionInfo{}, false, nil
	}
	return domain.SessionInfo{UserID: userID, ChannelID: channelID, PreviousResponseID: id}, true, nil
}

func (f *fakeSessions) put(_ context.Context, userID, channelID, responseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[userID+"_"+channelID] = responseID
	return nil
}

func (f *fakeSessions) clear(_ context.Context, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, userID+"_"+channelID)
	return nil
}

type logRow struct {
	flow, status string
}

type fakeLogs struct {
	mu   sync.Mutex
	rows []logRow
}

func (f *fakeLogs) InsertProcessingLog(_ context.Context, flow, status, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, logRow{flow: flow, status: status})
	return nil
}

func testWorkspace() domain.WorkspaceContext {
	return domain.WorkspaceContext{
		Projects: []domain.Project{{ID: "p1", Name: "Acme Portal", State: "started"}},
		Issues: []domain.Issue{
			{ID: "uuid-1", Identifier: "ALP-101", Title: "Fix login redirect loop", AssigneeName: "Diana", ProjectID: "p1"},
			{ID: "uuid-2", Identifier: "ALP-102", Title: "Add billing export", AssigneeName: "Marco", ProjectID: "p1"},
		},
	}
}

func newCommandsFixture(t *testing.T, writesEnabled bool) *commandsFixture {
	t.Helper()

	pair, err := workspace.NewCredentialPair("lin_read", "lin_write", "shared", "isolated")
	require.NoError(t, err)

	writer := &fakeWriter{}
	sessions := &fakeSessions{rows: map[string]string{}}
	logs := &fakeLogs{}

	conversations := adapters.ConversationStore{
		GetFunc:   sessions.get,
		PutFunc:   sessions.put,
		ClearFunc: sessions.clear,
	}

	contextService := contextmgr.NewService(contextmgr.Dependencies{
		Tickets: adapters.TicketReader{WorkspaceContextFunc: func(context.Context) (domain.WorkspaceContext, error) {
			return testWorkspace(), nil
		}},
		Documents: adapters.DocumentReader{RecentTranscriptsFunc: func(context.Context, time.Time, int) ([]domain.TranscriptRecord, error) {
			return []domain.TranscriptRecord{{ID: "t1", MeetingDate: "2026-08-28", FilteredContent: "Shipped the importer."}}, nil
		}},
		Pages: adapters.PageReader{SearchPagesFunc: func(context.Context, string) ([]domain.Page, error) {
			return nil, nil
		}},
		ClientStatuses: adapters.ClientStatusReader{GetClientStatusFunc: func(context.Context, string) (*domain.ClientStatus, error) {
			return nil, errors.New("no status store")
		}},
		Conversations: conversations,
	})

	generator := adapters.Generator{
		GenerateFunc: func(_ context.Context, _, _ string) (string, error) {
			return "generated summary", nil
		},
		ChatFunc: func(_ context.Context, _, _, previousResponseID string) (llm.ChatResult, error) {
			if previousResponseID != "" {
				return llm.ChatResult{Text: "continued reply", ResponseID: "resp-2"}, nil
			}
			return llm.ChatResult{Text: "fresh reply", ResponseID: "resp-1"}, nil
		},
		ExtractTicketsFunc: func(_ context.Context, _, user string) ([]domain.TicketDraft, error) {
			return []domain.TicketDraft{{Title: user, Assignee: "Diana", Estimate: 3}}, nil
		},
	}

	writeService := orchestrator.NewService(orchestrator.Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   writesEnabled,
	})

	commands := NewCommands(CommandsDependencies{
		Context:      contextService,
		Conversation: conversation.NewService(conversation.Dependencies{Store: conversations}),
		Generator:    generator,
		Orchestrator: writeService,
		Log:          logs,
	})

	return &commandsFixture{commands: commands, writer: writer, sessions: sessions, logs: logs}
}

func TestCreateTicketDryRunNeverReachesTracker(t *testing.T) {
	fx := newCommandsFixture(t, false)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandCreateTicket,
		Text:      "Ship the importer",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.Contains(t, resp.Text, "Would create")
	assert.Contains(t, resp.Text, "writes are disabled")
	assert.Equal(t, 0, fx.writer.createCalls)
}

func TestCreateTicketSubmitsExactlyOnceWhenEnabled(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandCreateTicket,
		Text:      "Ship the importer",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.Contains(t, resp.Text, "Created ALP-200")
	assert.Equal(t, 1, fx.writer.createCalls)
}

func TestCreateTicketUpstreamErrorKeepsProviderMessage(t *testing.T) {
	fx := newCommandsFixture(t, true)
	fx.writer.err = errors.New("Linear API: label 'backend' does not exist in this team")

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandCreateTicket,
		Text:      "Ship the importer",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "label 'backend' does not exist")
}

func TestUpdateTicketUpstreamErrorKeepsProviderMessage(t *testing.T) {
	fx := newCommandsFixture(t, true)
	fx.writer.err = errors.New("issue iss-1 is archived")

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandUpdateTicket,
		Text:      "ALP-101: state=Done",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "issue iss-1 is archived")
}

func TestUpdateTicketResolvesAndApplies(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandUpdateTicket,
		Text:      "ALP-101: state=Done",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.Contains(t, resp.Text, "Updated ALP-101")
	assert.Equal(t, 1, fx.writer.updateCalls)
	assert.Equal(t, "uuid-1", fx.writer.lastTarget)
}

func TestUpdateTicketAmbiguousReferenceListsCandidates(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandUpdateTicket,
		Text:      "the kafka migration: state=Done",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "couldn't find an open ticket")
	assert.Equal(t, 0, fx.writer.updateCalls)
}

func TestUpdateTicketWithoutInstructionAsksForOne(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind:      domain.CommandUpdateTicket,
		Text:      "ALP-101",
		UserID:    "U1",
		ChannelID: "C1",
	})

	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "which ticket and what to change")
	assert.Equal(t, 0, fx.writer.updateCalls)
}

func TestChatContinuesConversationAcrossTurns(t *testing.T) {
	fx := newCommandsFixture(t, true)
	instr := domain.Instruction{Kind: domain.CommandChat, Text: "hello", UserID: "U1", ChannelID: "C1"}

	first := fx.commands.Handle(context.Background(), instr)
	assert.Equal(t, "fresh reply", first.Text)

	second := fx.commands.Handle(context.Background(), instr)
	assert.Equal(t, "continued reply", second.Text)
	assert.Equal(t, "resp-2", fx.sessions.rows["U1_C1"])
}

func TestChatConversationsAreScopedPerChannel(t *testing.T) {
	fx := newCommandsFixture(t, true)

	fx.commands.Handle(context.Background(), domain.Instruction{Kind: domain.CommandChat, Text: "hi", UserID: "U1", ChannelID: "C1"})
	other := fx.commands.Handle(context.Background(), domain.Instruction{Kind: domain.CommandChat, Text: "hi", UserID: "U1", ChannelID: "C2"})

	assert.Equal(t, "fresh reply", other.Text, "a different channel starts a fresh conversation")
}

func TestClearConversationThenChatStartsFresh(t *testing.T) {
	fx := newCommandsFixture(t, true)
	chat := domain.Instruction{Kind: domain.CommandChat, Text: "hello", UserID: "U1", ChannelID: "C1"}

	fx.commands.Handle(context.Background(), chat)
	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandClearConversation, UserID: "U1", ChannelID: "C1",
	})
	assert.Contains(t, resp.Text, "cleared")

	after := fx.commands.Handle(context.Background(), chat)
	assert.Equal(t, "fresh reply", after.Text)
}

func TestClearConversationWithoutHistorySucceeds(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandClearConversation, UserID: "U9", ChannelID: "C9",
	})
	assert.Contains(t, resp.Text, "cleared")
}

func TestTeamMemberNotFoundBecomesText(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandTeamMember, Text: "nobody", UserID: "U1", ChannelID: "C1",
	})

	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "no team member matches")
}

func TestWeeklySummaryUsesGenerator(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandWeeklySummary, UserID: "U1", ChannelID: "C1",
	})
	assert.Equal(t, "generated summary", resp.Text)
	assert.False(t, resp.Ephemeral)
}

func TestEveryCommandWritesAProcessingLogRow(t *testing.T) {
	fx := newCommandsFixture(t, true)

	fx.commands.Handle(context.Background(), domain.Instruction{Kind: domain.CommandChat, Text: "hi", UserID: "U1", ChannelID: "C1"})
	fx.commands.Handle(context.Background(), domain.Instruction{Kind: domain.CommandKind("bogus"), UserID: "U1", ChannelID: "C1"})

	require.Len(t, fx.logs.rows, 2)
	assert.Equal(t, logRow{flow: "chat", status: "succeeded"}, fx.logs.rows[0])
	assert.Equal(t, logRow{flow: "bogus", status: "failed"}, fx.logs.rows[1])
}

func TestUnknownCommandBecomesText(t *testing.T) {
	fx := newCommandsFixture(t, true)

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandKind("bogus"), UserID: "U1", ChannelID: "C1",
	})
	assert.True(t, resp.Ephemeral)
	assert.Equal(t, "I don't know that command.", resp.Text)
}

func TestContextUnavailableBecomesText(t *testing.T) {
	fx := newCommandsFixture(t, true)
	down := contextmgr.NewService(contextmgr.Dependencies{
		Tickets: adapters.TicketReader{WorkspaceContextFunc: func(context.Context) (domain.WorkspaceContext, error) {
			return domain.WorkspaceContext{}, errors.New("linear is down")
		}},
		Documents: adapters.DocumentReader{RecentTranscriptsFunc: func(context.Context, time.Time, int) ([]domain.TranscriptRecord, error) {
			return nil, nil
		}},
	})
	fx.commands.deps.Context = down

	resp := fx.commands.Handle(context.Background(), domain.Instruction{
		Kind: domain.CommandUpdateTicket, Text: "ALP-101: state=Done", UserID: "U1", ChannelID: "C1",
	})
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "couldn't load the tickets context")
	assert.Equal(t, 0, fx.writer.updateCalls)
}

func TestParseUpdateFields(t *testing.T) {
	assert.Equal(t, map[string]string{"state": "Done", "priority": "2"}, parseUpdateFields("state=Done priority=2"))
	assert.Equal(t, map[string]string{"description": "mark it done please"}, parseUpdateFields("mark it done please"))
}
