package adapters

import (
	"context"
	"errors"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/store"
)

type ConversationStore struct {
	Store     *store.Store
	GetFunc   func(ctx context.Context, userID, channelID string) (domain.SessionInfo, bool, error)
	PutFunc   func(ctx context.Context, userID, channelID, responseID string) error
	ClearFunc func(ctx context.Context, userID, channelID string) error
}

func (s ConversationStore) Get(ctx context.Context, userID, channelID string) (domain.SessionInfo, bool, error) {
	if s.GetFunc != nil {
		return s.GetFunc(ctx, userID, channelID)
	}
	if s.Store == nil {
		return domain.SessionInfo{}, false, errors.New("conversation store is unavailable")
	}
	return s.Store.GetChatSession(ctx, userID, channelID)
}

func (s ConversationStore) Put(ctx context.Context, userID, channelID, responseID string) error {
	if s.PutFunc != nil {
		return s.PutFunc(ctx, userID, channelID, responseID)
	}
	if s.Store == nil {
		return errors.New("conversation store is unavailable")
	}
	return s.Store.PutChatSession(ctx, userID, channelID, responseID)
}

func (s ConversationStore) Clear(ctx context.Context, userID, channelID string) error {
	if s.ClearFunc != nil {
		return s.ClearFunc(ctx, userID, channelID)
	}
	if s.Store == nil {
		return errors.New("conversation store is unavailable")
	}
	return s.Store.DeleteChatSession(ctx, userID, channelID)
}
