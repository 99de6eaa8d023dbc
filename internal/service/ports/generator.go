package ports

import (
	"context"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/llm"
)

// Generator is the language-model surface the command flows depend on.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Chat(ctx context.Context, system, user, previousResponseID string) (llm.ChatResult, error)
	ExtractTickets(ctx context.Context, system, user string) ([]domain.TicketDraft, error)
}
