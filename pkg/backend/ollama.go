package backend

import (
	"context"
	"strings"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

// OllamaBackend talks to a local ollama server. The server address comes
// from OLLAMA_HOST.
type OllamaBackend struct {
	client       *api.Client
	model        string
	systemPrompt string
}

var _ Backend = (*OllamaBackend)(nil)

func NewOllamaBackend(s *settings.Settings) (*OllamaBackend, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return &OllamaBackend{
		client:       client,
		model:        s.ModelOrDefault(),
		systemPrompt: s.SystemPrompt,
	}, nil
}

func (o *OllamaBackend) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(o.systemPrompt, history),
		Stream:   &stream,
	}

	var reply strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "ollama chat failed")
	}

	log.Debug().Str("model", o.model).Int("reply_length", reply.Len()).Msg("ollama chat finished")
	return reply.String(), nil
}

func toOllamaMessages(systemPrompt string, history []conversation.Message) []api.Message {
	ret := make([]api.Message, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		ret = append(ret, api.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		ret = append(ret, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return ret
}
