package conversation

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// PlaceholderTitle is the title of a chat that has not received a user message yet.
	PlaceholderTitle = "New Chat"
	// TitleMaxLength is the number of characters kept when deriving a title.
	TitleMaxLength = 30
	TitleEllipsis  = "..."
)

// Chat is one conversation thread with its ordered message history, oldest first.
type Chat struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

func NewChat(id string, createdAt time.Time) Chat {
	return Chat{
		ID:        id,
		Title:     PlaceholderTitle,
		CreatedAt: createdAt,
		Messages:  []Message{},
	}
}

// Clone returns a copy that shares no message storage with c.
func (c Chat) Clone() Chat {
	ret := c
	ret.Messages = slices.Clone(c.Messages)
	if ret.Messages == nil {
		ret.Messages = []Message{}
	}
	return ret
}

// IsFresh reports whether the chat still qualifies for the one-time title rewrite.
func (c Chat) IsFresh() bool {
	return c.Title == PlaceholderTitle && len(c.Messages) == 0
}

func (c Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// DeriveTitle returns the first TitleMaxLength characters of the trimmed text,
// followed by TitleEllipsis when the text is longer than that.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= TitleMaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleMaxLength]) + TitleEllipsis
}
