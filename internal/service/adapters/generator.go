package adapters

import (
	"context"
	"errors"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/llm"
)

type Generator struct {
	Client             *llm.Client
	GenerateFunc       func(ctx context.Context, system, user string) (string, error)
	ChatFunc           func(ctx context.Context, system, user, previousResponseID string) (llm.ChatResult, error)
	ExtractTicketsFunc func(ctx context.Context, system, user string) ([]domain.TicketDraft, error)
}

func (g Generator) Generate(ctx context.Context, system, user string) (string, error) {
	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, system, user)
	}
	if g.Client == nil {
		return "", errors.New("generator is unavailable")
	}
	return g.Client.Generate(ctx, system, user)
}

func (g Generator) Chat(ctx context.Context, system, user, previousResponseID string) (llm.ChatResult, error) {
	if g.ChatFunc != nil {
		return g.ChatFunc(ctx, system, user, previousResponseID)
	}
	if g.Client == nil {
		return llm.ChatResult{}, errors.New("generator is unavailable")
	}
	return g.Client.Chat(ctx, system, user, previousResponseID)
}

func (g Generator) ExtractTickets(ctx context.Context, system, user string) ([]domain.TicketDraft, error) {
	if g.ExtractTicketsFunc != nil {
		return g.ExtractTicketsFunc(ctx, system, user)
	}
	if g.Client == nil {
		return nil, errors.New("generator is unavailable")
	}
	return g.Client.ExtractTickets(ctx, system, user)
}
