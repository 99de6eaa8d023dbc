package ports

import (
	"context"

	"alphamachine/gateway/internal/domain"
)

// ConversationStore persists the provider continuation token per
// (user, channel) pair. Put upserts; Clear is idempotent.
type ConversationStore interface {
	Get(ctx context.Context, userID, channelID string) (domain.SessionInfo, bool, error)
	Put(ctx context.Context, userID, channelID, responseID string) error
	Clear(ctx context.Context, userID, channelID string) error
}
