package backend

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

// OpenAIBackend sends the history to an OpenAI-compatible chat completion endpoint.
type OpenAIBackend struct {
	client       *go_openai.Client
	model        string
	systemPrompt string
	maxTokens    int
}

var _ Backend = (*OpenAIBackend)(nil)

func NewOpenAIBackend(s *settings.Settings) (*OpenAIBackend, error) {
	if s.APIKey == "" {
		return nil, errors.New("no API key for openai")
	}

	config := go_openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}

	return &OpenAIBackend{
		client:       go_openai.NewClientWithConfig(config),
		model:        s.ModelOrDefault(),
		systemPrompt: s.SystemPrompt,
		maxTokens:    s.MaxTokens,
	}, nil
}

func (o *OpenAIBackend) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	req := go_openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  toOpenAIMessages(o.systemPrompt, history),
		MaxTokens: o.maxTokens,
	}

	log.Debug().Str("model", o.model).Int("num_messages", len(req.Messages)).Msg("OpenAI chat completion started")
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(err, "openai chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("OpenAI chat completion finished")

	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(systemPrompt string, history []conversation.Message) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range history {
		role := go_openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return ret
}
