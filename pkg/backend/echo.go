package backend

import (
	"context"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
)

// EchoBackend replies with the content of the last user message.
type EchoBackend struct{}

var _ Backend = EchoBackend{}

func NewEchoBackend() EchoBackend {
	return EchoBackend{}
}

func (EchoBackend) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := lastUserMessage(history)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}
