package adapters

import (
	"context"
	"errors"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/linear"
	"alphamachine/gateway/internal/workspace"
)

type TicketWriter struct {
	Client          *linear.Client
	CreateIssueFunc func(ctx context.Context, cap workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error)
	UpdateIssueFunc func(ctx context.Context, cap workspace.WriteCapability, issueID string, fields map[string]string) (domain.Issue, error)
}

func (w TicketWriter) CreateIssue(ctx context.Context, cap workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error) {
	if w.CreateIssueFunc != nil {
		return w.CreateIssueFunc(ctx, cap, draft)
	}
	if w.Client == nil {
		return domain.Issue{}, errors.New("ticket writer is unavailable")
	}
	return w.Client.CreateIssue(ctx, cap, draft)
}

func (w TicketWriter) UpdateIssue(ctx context.Context, cap workspace.WriteCapability, issueID string, fields map[string]string) (domain.Issue, error) {
	if w.UpdateIssueFunc != nil {
		return w.UpdateIssueFunc(ctx, cap, issueID, fields)
	}
	if w.Client == nil {
		return domain.Issue{}, errors.New("ticket writer is unavailable")
	}
	return w.Client.UpdateIssue(ctx, cap, issueID, fields)
}
