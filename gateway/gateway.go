// Package gateway is the port to the messaging-channel client. The engine
// treats it as a black box: send a message, resolve a conversation id, drop
// the "needs human agent" marker.
package gateway

import "context"

type Messenger interface {
	Send(ctx context.Context, chatId string, text string) error
	SendWithMedia(ctx context.Context, chatId string, mediaUrl string, caption string) error
	RemoveAgentWaitMarker(ctx context.Context, chatId string) error
	ResolveConversationId(ctx context.Context, phone string) (string, error)
}

// NoopMessenger satisfies Messenger without side effects, for deployments
// where the channel client is wired elsewhere.
type NoopMessenger struct{}

var _ Messenger = NoopMessenger{}

func (NoopMessenger) Send(ctx context.Context, chatId string, text string) error {
	return nil
}

func (NoopMessenger) SendWithMedia(ctx context.Context, chatId string, mediaUrl string, caption string) error {
	return nil
}

func (NoopMessenger) RemoveAgentWaitMarker(ctx context.Context, chatId string) error {
	return nil
}

func (NoopMessenger) ResolveConversationId(ctx context.Context, phone string) (string, error) {
	return phone, nil
}
