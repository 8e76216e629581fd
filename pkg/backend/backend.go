// Package backend defines the contract between the reply orchestrator and the
// language-model service producing assistant replies, and ships the
// implementations chatdesk can be configured with.
//
// A Backend receives the chat history, oldest first and ending with the
// user message being answered, and returns the reply text or an error. Any
// error, including an expired context, means the reply failed.
package backend

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

type Backend interface {
	Reply(ctx context.Context, history []conversation.Message) (string, error)
}

// Func adapts a function to the Backend interface.
type Func func(ctx context.Context, history []conversation.Message) (string, error)

func (f Func) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	return f(ctx, history)
}

var ErrEmptyHistory = errors.New("no message to reply to")

// New builds the backend selected by s.Backend.
func New(s *settings.Settings) (Backend, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Backend {
	case settings.BackendDemo:
		return NewDemoBackend(s.DemoDelay), nil
	case settings.BackendEcho:
		return NewEchoBackend(), nil
	case settings.BackendOpenAI:
		return NewOpenAIBackend(s)
	case settings.BackendOllama:
		return NewOllamaBackend(s)
	default:
		return nil, errors.Errorf("unknown backend %q", s.Backend)
	}
}

func lastUserMessage(history []conversation.Message) (conversation.Message, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser {
			return history[i], nil
		}
	}
	return conversation.Message{}, ErrEmptyHistory
}
