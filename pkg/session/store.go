// Package session holds the authoritative in-memory state of all chats and
// the selection cursor.
//
// The Store is the single serialization point for chat mutations. Every
// method is safe for concurrent use; reads return copies, so callers can never
// bypass the ordering and uniqueness invariants by mutating a returned Chat.
//
// Events are published outside the state lock but in mutation order: a
// chat's message-appended events always reach the publisher before its
// chat-deleted event. Handlers may read the store, but a handler that
// mutates it from inside a blocking publish will deadlock.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/errs"
	"github.com/go-go-golems/chatdesk/pkg/events"
)

const maxIDAttempts = 8

type entry struct {
	chat conversation.Chat
	// seq is the insertion order, used to break CreatedAt ties.
	seq uint64
}

type Store struct {
	mu       sync.RWMutex
	chats    map[string]*entry
	selected string
	seq      uint64

	// Events are ticketed under mu and published in ticket order.
	pubMu     sync.Mutex
	pubCond   *sync.Cond
	pubTicket uint64
	pubNext   uint64

	now       func() time.Time
	newID     func() string
	publisher events.Publisher
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the UUID generator. Colliding ids are retried.
func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		s.newID = newID
	}
}

func WithPublisher(p events.Publisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		chats:     map[string]*entry{},
		now:       time.Now,
		newID:     uuid.NewString,
		publisher: events.NullPublisher{},
	}
	ret.pubCond = sync.NewCond(&ret.pubMu)
	for _, option := range options {
		option(ret)
	}
	return ret
}

// CreateChat inserts an empty chat with the placeholder title and selects it.
func (s *Store) CreateChat() string {
	s.mu.Lock()
	id := s.newID()
	for attempt := 1; s.exists(id); attempt++ {
		log.Warn().Str("chat_id", id).Int("attempt", attempt).Msg("chat id collision, regenerating")
		if attempt >= maxIDAttempts {
			id = uuid.NewString()
		} else {
			id = s.newID()
		}
	}

	s.seq++
	chat := conversation.NewChat(id, s.now())
	s.chats[id] = &entry{chat: chat, seq: s.seq}
	s.selected = id

	log.Debug().Str("chat_id", id).Msg("created chat")
	s.unlockAndPublish(events.NewChatCreatedEvent(id, chat.Title, chat.CreatedAt))

	return id
}

func (s *Store) SelectChat(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists(id) {
		return &NotFoundError{ChatID: id}
	}
	s.selected = id
	return nil
}

// DeleteChat removes the chat and clears the selection if it pointed at it.
// Deleting an unknown chat returns a NotFoundError and changes nothing.
func (s *Store) DeleteChat(id string) error {
	s.mu.Lock()
	if !s.exists(id) {
		s.mu.Unlock()
		return &NotFoundError{ChatID: id}
	}
	delete(s.chats, id)
	wasSelected := s.selected == id
	if wasSelected {
		s.selected = ""
	}

	log.Debug().Str("chat_id", id).Bool("was_selected", wasSelected).Msg("deleted chat")
	s.unlockAndPublish(events.NewChatDeletedEvent(id, wasSelected, s.now()))

	return nil
}

// AppendMessage adds msg at the end of the chat's history.
func (s *Store) AppendMessage(id string, msg conversation.Message) error {
	return s.appendMessage(id, msg, false)
}

// AppendUserMessage appends msg and, if the chat was still fresh before the
// append, rewrites its title from the message content. Both happen under the
// same lock.
func (s *Store) AppendUserMessage(id string, msg conversation.Message) error {
	if msg.Role != conversation.RoleUser {
		return &errs.ValidationError{Field: "role", Reason: "expected a user message"}
	}
	return s.appendMessage(id, msg, true)
}

func (s *Store) appendMessage(id string, msg conversation.Message, applyTitle bool) error {
	if !msg.Role.IsValid() {
		return &errs.ValidationError{Field: "role", Reason: "unknown role " + string(msg.Role)}
	}

	s.mu.Lock()
	e, ok := s.chats[id]
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{ChatID: id}
	}
	if applyTitle && e.chat.IsFresh() {
		e.chat.Title = conversation.DeriveTitle(msg.Content)
		log.Debug().Str("chat_id", id).Str("title", e.chat.Title).Msg("derived chat title")
	}
	e.chat.Messages = append(e.chat.Messages, msg)
	index := len(e.chat.Messages) - 1
	title := e.chat.Title

	s.unlockAndPublish(events.NewMessageAppendedEvent(id, string(msg.Role), index, title, msg.Time))

	return nil
}

// ListChats returns all chats, most recently created first. Chats created
// at the same instant are ordered by insertion, the later one first.
func (s *Store) ListChats() []conversation.Chat {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.chats))
	for _, e := range s.chats {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.chat.CreatedAt.Equal(b.chat.CreatedAt) {
			return a.chat.CreatedAt.After(b.chat.CreatedAt)
		}
		return a.seq > b.seq
	})

	ret := make([]conversation.Chat, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, e.chat.Clone())
	}
	s.mu.RUnlock()

	return ret
}

func (s *Store) GetSelected() (conversation.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.selected == "" {
		return conversation.Chat{}, false
	}
	e, ok := s.chats[s.selected]
	if !ok {
		return conversation.Chat{}, false
	}
	return e.chat.Clone(), true
}

// SelectedID returns the selected chat id, or "" when nothing is selected.
func (s *Store) SelectedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Store) GetChat(id string) (conversation.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.chats[id]
	if !ok {
		return conversation.Chat{}, &NotFoundError{ChatID: id}
	}
	return e.chat.Clone(), nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// unlockAndPublish must be called with mu held. It takes a ticket, releases
// mu and waits for the earlier tickets before publishing ev.
func (s *Store) unlockAndPublish(ev events.Event) {
	ticket := s.pubTicket
	s.pubTicket++
	s.mu.Unlock()

	s.pubMu.Lock()
	for s.pubNext != ticket {
		s.pubCond.Wait()
	}
	s.pubMu.Unlock()

	events.PublishBlind(s.publisher, ev)

	s.pubMu.Lock()
	s.pubNext++
	s.pubCond.Broadcast()
	s.pubMu.Unlock()
}

func (s *Store) exists(id string) bool {
	_, ok := s.chats[id]
	return ok
}

// IsNotFound reports whether err means the referenced chat does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}
