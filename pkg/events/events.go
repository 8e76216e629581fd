package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeChatCreated     EventType = "chat-created"
	EventTypeChatDeleted     EventType = "chat-deleted"
	EventTypeMessageAppended EventType = "message-appended"
	EventTypeProfileUpdated  EventType = "profile-updated"

	// Reply lifecycle, one started event followed by exactly one completed or failed event.
	EventTypeReplyStarted   EventType = "reply-started"
	EventTypeReplyCompleted EventType = "reply-completed"
	EventTypeReplyFailed    EventType = "reply-failed"
)

// TopicChat is the watermill topic all chat events are published on.
const TopicChat = "chat"

type Event interface {
	zerolog.LogObjectMarshaler
	Type() EventType
	ChatID() string
	Time() time.Time
}

type EventImpl struct {
	Type_   EventType `json:"type"`
	ChatID_ string    `json:"chat_id,omitempty"`
	Time_   time.Time `json:"time"`
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) ChatID() string {
	return e.ChatID_
}

func (e *EventImpl) Time() time.Time {
	return e.Time_
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	if e.ChatID_ != "" {
		ev.Str("chat_id", e.ChatID_)
	}
	ev.Time("time", e.Time_)
}

var _ Event = (*EventImpl)(nil)

type EventChatCreated struct {
	EventImpl
	Title string `json:"title"`
}

func NewChatCreatedEvent(chatID string, title string, t time.Time) *EventChatCreated {
	return &EventChatCreated{
		EventImpl: EventImpl{Type_: EventTypeChatCreated, ChatID_: chatID, Time_: t},
		Title:     title,
	}
}

type EventChatDeleted struct {
	EventImpl
	WasSelected bool `json:"was_selected"`
}

func NewChatDeletedEvent(chatID string, wasSelected bool, t time.Time) *EventChatDeleted {
	return &EventChatDeleted{
		EventImpl:   EventImpl{Type_: EventTypeChatDeleted, ChatID_: chatID, Time_: t},
		WasSelected: wasSelected,
	}
}

type EventMessageAppended struct {
	EventImpl
	Role  string `json:"role"`
	Index int    `json:"index"`
	Title string `json:"title"`
}

func NewMessageAppendedEvent(chatID string, role string, index int, title string, t time.Time) *EventMessageAppended {
	return &EventMessageAppended{
		EventImpl: EventImpl{Type_: EventTypeMessageAppended, ChatID_: chatID, Time_: t},
		Role:      role,
		Index:     index,
		Title:     title,
	}
}

type EventProfileUpdated struct {
	EventImpl
	Name string `json:"name"`
}

func NewProfileUpdatedEvent(name string, t time.Time) *EventProfileUpdated {
	return &EventProfileUpdated{
		EventImpl: EventImpl{Type_: EventTypeProfileUpdated, Time_: t},
		Name:      name,
	}
}

type EventReplyStarted struct {
	EventImpl
	SubmissionID string `json:"submission_id"`
}

func NewReplyStartedEvent(chatID string, submissionID string, t time.Time) *EventReplyStarted {
	return &EventReplyStarted{
		EventImpl:    EventImpl{Type_: EventTypeReplyStarted, ChatID_: chatID, Time_: t},
		SubmissionID: submissionID,
	}
}

type EventReplyCompleted struct {
	EventImpl
	SubmissionID string `json:"submission_id"`
	// Discarded is set when the chat was deleted before the reply arrived.
	Discarded bool `json:"discarded,omitempty"`
}

func NewReplyCompletedEvent(chatID string, submissionID string, discarded bool, t time.Time) *EventReplyCompleted {
	return &EventReplyCompleted{
		EventImpl:    EventImpl{Type_: EventTypeReplyCompleted, ChatID_: chatID, Time_: t},
		SubmissionID: submissionID,
		Discarded:    discarded,
	}
}

type EventReplyFailed struct {
	EventImpl
	SubmissionID string `json:"submission_id"`
	Error        string `json:"error"`
}

func NewReplyFailedEvent(chatID string, submissionID string, err error, t time.Time) *EventReplyFailed {
	ret := &EventReplyFailed{
		EventImpl:    EventImpl{Type_: EventTypeReplyFailed, ChatID_: chatID, Time_: t},
		SubmissionID: submissionID,
	}
	if err != nil {
		ret.Error = err.Error()
	}
	return ret
}

// NewEventFromJson decodes a payload produced by a Publisher back into its typed event.
func NewEventFromJson(b []byte) (Event, error) {
	var e EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode event")
	}

	var ret Event
	switch e.Type_ {
	case EventTypeChatCreated:
		ret = &EventChatCreated{}
	case EventTypeChatDeleted:
		ret = &EventChatDeleted{}
	case EventTypeMessageAppended:
		ret = &EventMessageAppended{}
	case EventTypeProfileUpdated:
		ret = &EventProfileUpdated{}
	case EventTypeReplyStarted:
		ret = &EventReplyStarted{}
	case EventTypeReplyCompleted:
		ret = &EventReplyCompleted{}
	case EventTypeReplyFailed:
		ret = &EventReplyFailed{}
	default:
		return nil, errors.Errorf("unknown event type %q", e.Type_)
	}

	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s event", e.Type_)
	}
	return ret, nil
}
