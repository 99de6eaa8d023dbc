package adapters

import (
	"context"
	"errors"

	"alphamachine/gateway/internal/channel"
)

type Messenger struct {
	Channel           *channel.SlackChannel
	SendEphemeralFunc func(ctx context.Context, channelID, userID, text string) error
	SendMessageFunc   func(ctx context.Context, channelID, text string) error
}

func (m Messenger) SendEphemeral(ctx context.Context, channelID, userID, text string) error {
	if m.SendEphemeralFunc != nil {
		return m.SendEphemeralFunc(ctx, channelID, userID, text)
	}
	if m.Channel == nil {
		return errors.New("messenger is unavailable")
	}
	return m.Channel.SendEphemeral(ctx, channelID, userID, text)
}

func (m Messenger) SendMessage(ctx context.Context, channelID, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, channelID, text)
	}
	if m.Channel == nil {
		return errors.New("messenger is unavailable")
	}
	return m.Channel.SendMessage(ctx, channelID, text)
}
