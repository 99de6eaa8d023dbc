package ports

import (
	"context"
	"time"

	"alphamachine/gateway/internal/domain"
)

// TicketReader snapshots the shared ticket workspace. Read-only by
// construction: the backing client holds the read capability.
type TicketReader interface {
	WorkspaceContext(ctx context.Context) (domain.WorkspaceContext, error)
}

// DocumentReader returns recent filtered transcripts from the datastore.
type DocumentReader interface {
	RecentTranscripts(ctx context.Context, since time.Time, limit int) ([]domain.TranscriptRecord, error)
}

// PageReader searches document-workspace pages, typically by client name.
type PageReader interface {
	SearchPages(ctx context.Context, query string) ([]domain.Page, error)
}

// ClientStatusReader looks up the stored status row for a named client.
type ClientStatusReader interface {
	GetClientStatus(ctx context.Context, clientName string) (*domain.ClientStatus, error)
}
