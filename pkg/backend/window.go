package backend

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
)

// perMessageOverhead approximates the role and separator tokens each chat
// message costs on top of its content.
const perMessageOverhead = 4

// Window trims a history to what is sent to a backend. A zero limit means
// no limit. The newest message is always kept.
type Window struct {
	MaxTokens   int
	MaxMessages int

	codec tokenizer.Codec
}

func NewWindow(maxTokens, maxMessages int) (*Window, error) {
	if maxTokens < 0 || maxMessages < 0 {
		return nil, errors.New("window limits must not be negative")
	}
	w := &Window{
		MaxTokens:   maxTokens,
		MaxMessages: maxMessages,
	}
	if maxTokens > 0 {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "could not load tokenizer")
		}
		w.codec = codec
	}
	return w, nil
}

// Count returns the approximate number of tokens m costs.
func (w *Window) Count(m conversation.Message) (int, error) {
	if w.codec == nil {
		return 0, errors.New("window has no tokenizer")
	}
	ids, _, err := w.codec.Encode(m.Content)
	if err != nil {
		return 0, errors.Wrap(err, "could not encode message")
	}
	return len(ids) + perMessageOverhead, nil
}

// Apply returns the longest suffix of history that fits both limits.
func (w *Window) Apply(history []conversation.Message) ([]conversation.Message, error) {
	if w == nil || len(history) == 0 {
		return history, nil
	}

	start := 0
	if w.MaxMessages > 0 && len(history) > w.MaxMessages {
		start = len(history) - w.MaxMessages
	}

	if w.MaxTokens > 0 {
		total := 0
		i := len(history) - 1
		for ; i >= start; i-- {
			n, err := w.Count(history[i])
			if err != nil {
				return nil, err
			}
			if total+n > w.MaxTokens && i < len(history)-1 {
				break
			}
			total += n
		}
		start = i + 1
	}

	return history[start:], nil
}
