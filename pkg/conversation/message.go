// Package conversation provides the chat data model: messages, chats and the
// rule that derives a chat title from its first user message.
//
// Values in this package are plain data. A Chat handed out by the session
// store is a copy; mutating it never affects the stored chat.
package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is one turn of a chat. It is immutable once created.
type Message struct {
	Role    Role      `json:"role" yaml:"role"`
	Content string    `json:"content" yaml:"content"`
	Time    time.Time `json:"timestamp" yaml:"timestamp"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

// NewChatMessage creates a message stamped with the current time unless
// WithTime overrides it.
func NewChatMessage(role Role, content string, options ...MessageOption) Message {
	ret := Message{
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
	for _, option := range options {
		option(&ret)
	}
	return ret
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}
