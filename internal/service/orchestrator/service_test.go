package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/workspace"
)

type recordingWriter struct {
	createCalls int
	updateCalls int
	lastTarget  string
	lastFields  map[string]string
	issue       domain.Issue
	err         error
}

func (w *recordingWriter) CreateIssue(_ context.Context, _ workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error) {
	w.createCalls++
	if w.err != nil {
		return domain.Issue{}, w.err
	}
	if w.issue.Title == "" {
		w.issue.Title = draft.Title
	}
	return w.issue, nil
}

func (w *recordingWriter) UpdateIssue(_ context.Context, _ workspace.WriteCapability, issueID string, fields map[string]string) (domain.Issue, error) {
	w.updateCalls++
	w.lastTarget = issueID
	w.lastFields = fields
	if w.err != nil {
		return domain.Issue{}, w.err
	}
	return w.issue, nil
}

func testPair(t *testing.T) workspace.CredentialPair {
	t.Helper()
	pair, err := workspace.NewCredentialPair("lin_read", "lin_write", "shared", "isolated")
	require.NoError(t, err)
	return pair
}

func testIssues() []domain.Issue {
	return []domain.Issue{
		{ID: "uuid-1", Identifier: "ALP-101", Title: "Fix login redirect loop"},
		{ID: "uuid-2", Identifier: "ALP-102", Title: "Add billing export"},
		{ID: "uuid-3", Identifier: "ALP-103", Title: "Billing dashboard slow"},
	}
}

func TestExecuteCreateRejectsForgedCredentialBeforeWriter(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: workspace.NewWriteCapability("lin_read", "shared"),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteCreate(context.Background(), domain.TicketDraft{Title: "anything"})
	require.Error(t, err)
	assert.True(t, workspace.IsSafetyViolation(err))
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 0, writer.createCalls, "gate must run before any writer call")
}

func TestExecuteUpdateRejectsForgedCredentialBeforeResolution(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: workspace.WriteCapability{},
		WritesEnabled:   true,
	})

	_, err := svc.ExecuteUpdate(context.Background(), "ALP-101", map[string]string{"state": "Done"}, testIssues())
	require.Error(t, err)
	assert.True(t, workspace.IsSafetyViolation(err))
	assert.Equal(t, 0, writer.updateCalls)
}

func TestExecuteCreateDryRunStopsAtResolved(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   false,
	})

	draft := domain.TicketDraft{Title: "Ship the importer", Assignee: "diana"}
	result, err := svc.ExecuteCreate(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, result.Phase)
	require.NotNil(t, result.Preview)
	assert.Equal(t, domain.MutationCreate, result.Preview.Kind)
	assert.Equal(t, draft, result.Preview.Draft)
	assert.Equal(t, 0, writer.createCalls, "dry run must not reach the tracker")
}

func TestExecuteCreateSubmitsExactlyOnce(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{issue: domain.Issue{ID: "uuid-9", Identifier: "ALP-200", Title: "Ship the importer"}}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteCreate(context.Background(), domain.TicketDraft{Title: "Ship the importer"})
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, result.Phase)
	assert.Equal(t, "ALP-200", result.Issue.Identifier)
	assert.Equal(t, 1, writer.createCalls)
}

func TestExecuteCreateEmptyDraftFails(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteCreate(context.Background(), domain.TicketDraft{})
	require.Error(t, err)
	var upstream *UpstreamError
	assert.True(t, errors.As(err, &upstream))
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 0, writer.createCalls)
}

func TestExecuteCreateUpstreamFailureIsNotRetried(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{err: errors.New("mutation_rejected")}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteCreate(context.Background(), domain.TicketDraft{Title: "Ship the importer"})
	require.Error(t, err)
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 1, writer.createCalls, "a rejected mutation must not be retried")
}

func TestExecuteUpdateResolvesByIdentifier(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{issue: domain.Issue{ID: "uuid-1", Identifier: "ALP-101", Title: "Fix login redirect loop", StateName: "Done"}}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	fields := map[string]string{"state": "Done"}
	result, err := svc.ExecuteUpdate(context.Background(), "alp-101", fields, testIssues())
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, result.Phase)
	assert.Equal(t, 1, writer.updateCalls)
	assert.Equal(t, "uuid-1", writer.lastTarget)
	assert.Equal(t, fields, writer.lastFields)
}

func TestExecuteUpdateResolvesByTitleSubstring(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{issue: domain.Issue{ID: "uuid-1", Identifier: "ALP-101"}}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	_, err := svc.ExecuteUpdate(context.Background(), "login redirect", map[string]string{"state": "Done"}, testIssues())
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", writer.lastTarget)
}

func TestExecuteUpdateNoMatchIsAmbiguous(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteUpdate(context.Background(), "the kafka migration", nil, testIssues())
	require.Error(t, err)
	var ambiguous *AmbiguousTargetError
	require.True(t, errors.As(err, &ambiguous))
	assert.Empty(t, ambiguous.Candidates)
	assert.Contains(t, err.Error(), "no open ticket matches")
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Equal(t, 0, writer.updateCalls)
}

func TestExecuteUpdateMultiMatchIsAmbiguous(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   true,
	})

	result, err := svc.ExecuteUpdate(context.Background(), "billing", map[string]string{"state": "Done"}, testIssues())
	require.Error(t, err)
	var ambiguous *AmbiguousTargetError
	require.True(t, errors.As(err, &ambiguous))
	assert.Len(t, ambiguous.Candidates, 2)
	assert.Contains(t, err.Error(), "matches 2 tickets")
	assert.Equal(t, PhaseFailed, result.Phase)
	assert.Len(t, result.Candidates, 2)
	assert.Equal(t, 0, writer.updateCalls)
}

func TestExecuteUpdateDryRunKeepsTarget(t *testing.T) {
	pair := testPair(t)
	writer := &recordingWriter{}
	svc := NewService(Dependencies{
		Writer:          writer,
		Credentials:     pair,
		WriteCredential: pair.Write(),
		WritesEnabled:   false,
	})

	result, err := svc.ExecuteUpdate(context.Background(), "ALP-103", map[string]string{"priority": "2"}, testIssues())
	require.NoError(t, err)
	assert.Equal(t, PhaseResolved, result.Phase)
	require.NotNil(t, result.Preview)
	assert.Equal(t, domain.MutationUpdate, result.Preview.Kind)
	assert.Equal(t, "uuid-3", result.Preview.TargetID)
	assert.Equal(t, 0, writer.updateCalls)
}

func TestIdentifierResolverPrefersExactMatchOverTitle(t *testing.T) {
	issues := append(testIssues(), domain.Issue{ID: "uuid-4", Identifier: "ALP-104", Title: "Mentions ALP-101 in title"})
	resolver := DefaultResolver()

	got := resolver.Resolve("ALP-101", issues)
	require.Len(t, got, 1)
	assert.Equal(t, "uuid-1", got[0].ID)
}
