package ports

import (
	"context"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/workspace"
)

// TicketWriter mutates the isolated workspace. Both operations take the write
// capability explicitly so the safety gate sees exactly what will be sent.
type TicketWriter interface {
	CreateIssue(ctx context.Context, cap workspace.WriteCapability, draft domain.TicketDraft) (domain.Issue, error)
	UpdateIssue(ctx context.Context, cap workspace.WriteCapability, issueID string, fields map[string]string) (domain.Issue, error)
}
