package ports

import "context"

// Messenger delivers outbound text to the chat platform.
type Messenger interface {
	SendEphemeral(ctx context.Context, channelID, userID, text string) error
	SendMessage(ctx context.Context, channelID, text string) error
}
