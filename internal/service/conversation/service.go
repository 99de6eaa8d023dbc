// Package conversation tracks multi-turn chat continuity. The provider holds
// the actual history; all we keep is the latest response id per (user,
// channel) pair so the next turn can continue where the last one ended.
package conversation

import (
	"context"

	"go.uber.org/zap"

	"alphamachine/gateway/internal/service/ports"
)

type Dependencies struct {
	Store  ports.ConversationStore
	Logger *zap.Logger
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{deps: deps}
}

// ContinuationToken returns the stored response id, or empty when the pair has
// no live conversation. A store failure degrades to a fresh conversation
// rather than failing the chat turn.
func (s *Service) ContinuationToken(ctx context.Context, userID, channelID string) string {
	info, found, err := s.deps.Store.Get(ctx, userID, channelID)
	if err != nil {
		s.deps.Logger.Warn("conversation lookup failed",
			zap.String("user_id", userID), zap.String("channel_id", channelID), zap.Error(err))
		return ""
	}
	if !found {
		return ""
	}
	return info.PreviousResponseID
}

// Remember upserts the continuation token after a successful provider turn.
func (s *Service) Remember(ctx context.Context, userID, channelID, responseID string) error {
	return s.deps.Store.Put(ctx, userID, channelID, responseID)
}

// Forget drops the conversation; clearing an absent one succeeds.
func (s *Service) Forget(ctx context.Context, userID, channelID string) error {
	return s.deps.Store.Clear(ctx, userID, channelID)
}
