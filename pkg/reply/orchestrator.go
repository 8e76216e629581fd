// Package reply turns submitted user text into a committed user message and,
// once the assistant backend answers, a committed assistant message.
//
// At most one reply is outstanding per chat. Submissions for a chat whose
// reply is still pending are rejected with ErrReplyPending and change nothing.
// Backend calls run in their own goroutine; the caller learns the outcome from
// the returned ExecutionHandle and from reply events.
package reply

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/backend"
	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/errs"
	"github.com/go-go-golems/chatdesk/pkg/events"
	"github.com/go-go-golems/chatdesk/pkg/session"
)

var (
	ErrReplyPending = errors.New("a reply is already pending for this chat")
	// ErrReplyDiscarded is returned by ExecutionHandle.Wait when the chat was
	// deleted before its reply arrived. It matches errs.ErrNotFound.
	ErrReplyDiscarded = errors.Wrap(errs.ErrNotFound, "chat deleted before the reply arrived")
	ErrEmptyReply     = errors.New("backend returned an empty reply")
)

// Store is the part of session.Store the orchestrator writes through.
type Store interface {
	GetChat(id string) (conversation.Chat, error)
	AppendUserMessage(id string, msg conversation.Message) error
	AppendMessage(id string, msg conversation.Message) error
}

var _ Store = (*session.Store)(nil)

type Orchestrator struct {
	store   Store
	backend backend.Backend
	tracker *Tracker

	now          func() time.Time
	publisher    events.Publisher
	replyTimeout time.Duration
	window       *backend.Window

	wg sync.WaitGroup
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithReplyTimeout bounds each backend call. Zero means no bound.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.replyTimeout = d
	}
}

// WithHistoryWindow trims the history handed to the backend.
func WithHistoryWindow(w *backend.Window) Option {
	return func(o *Orchestrator) {
		o.window = w
	}
}

func NewOrchestrator(store Store, b backend.Backend, options ...Option) *Orchestrator {
	ret := &Orchestrator{
		store:     store,
		backend:   b,
		tracker:   NewTracker(),
		now:       time.Now,
		publisher: events.NullPublisher{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Submit commits text as a user message to chatID and starts the backend
// call for the reply. The orchestrator never creates chats: an unknown chatID
// returns an error matching errs.ErrNotFound.
//
// Blank text returns an error matching errs.ErrInvalidInput and a pending
// chat returns ErrReplyPending. Both leave all state untouched and are safe
// to ignore.
func (o *Orchestrator) Submit(ctx context.Context, chatID string, text string) (*ExecutionHandle, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &errs.ValidationError{Field: "text", Reason: "message is empty"}
	}

	if !o.tracker.TryAcquire(chatID) {
		log.Debug().Str("chat_id", chatID).Msg("reply already pending, ignoring submission")
		return nil, ErrReplyPending
	}

	msg := conversation.NewChatMessage(conversation.RoleUser, text, conversation.WithTime(o.now()))
	if err := o.store.AppendUserMessage(chatID, msg); err != nil {
		o.tracker.Release(chatID)
		return nil, err
	}

	chat, err := o.store.GetChat(chatID)
	if err != nil {
		// deleted between the append and the read
		o.tracker.Release(chatID)
		return nil, err
	}

	handle := newExecutionHandle(chatID, shortuuid.New())
	log.Debug().
		Str("chat_id", chatID).
		Str("submission_id", handle.SubmissionID).
		Int("num_messages", len(chat.Messages)).
		Msg("reply started")
	events.PublishBlind(o.publisher, events.NewReplyStartedEvent(chatID, handle.SubmissionID, o.now()))

	o.wg.Add(1)
	go o.run(ctx, handle, chat.Messages)

	return handle, nil
}

func (o *Orchestrator) run(ctx context.Context, h *ExecutionHandle, history []conversation.Message) {
	defer o.wg.Done()

	text, err := o.callBackend(ctx, history)
	if err != nil {
		o.fail(h, err)
		return
	}

	msg := conversation.NewChatMessage(conversation.RoleAssistant, text, conversation.WithTime(o.now()))
	err = o.store.AppendMessage(h.ChatID, msg)
	switch {
	case err == nil:
		o.tracker.Release(h.ChatID)
		log.Debug().Str("chat_id", h.ChatID).Str("submission_id", h.SubmissionID).Msg("reply completed")
		events.PublishBlind(o.publisher, events.NewReplyCompletedEvent(h.ChatID, h.SubmissionID, false, o.now()))
		h.setResult(msg, nil)

	case session.IsNotFound(err):
		o.tracker.Release(h.ChatID)
		log.Debug().Str("chat_id", h.ChatID).Str("submission_id", h.SubmissionID).Msg("chat deleted while reply was pending, discarding reply")
		events.PublishBlind(o.publisher, events.NewReplyCompletedEvent(h.ChatID, h.SubmissionID, true, o.now()))
		h.setResult(conversation.Message{}, ErrReplyDiscarded)

	default:
		o.fail(h, errors.Wrap(err, "could not store reply"))
	}
}

func (o *Orchestrator) callBackend(ctx context.Context, history []conversation.Message) (string, error) {
	if o.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.replyTimeout)
		defer cancel()
	}

	history, err := o.window.Apply(history)
	if err != nil {
		return "", errors.Wrap(err, "could not window history")
	}

	text, err := o.backend.Reply(ctx, history)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func (o *Orchestrator) fail(h *ExecutionHandle, cause error) {
	err := &errs.BackendError{ChatID: h.ChatID, Err: cause}
	o.tracker.Release(h.ChatID)
	log.Warn().Err(cause).Str("chat_id", h.ChatID).Str("submission_id", h.SubmissionID).Msg("reply failed")
	events.PublishBlind(o.publisher, events.NewReplyFailedEvent(h.ChatID, h.SubmissionID, err, o.now()))
	h.setResult(conversation.Message{}, err)
}

func (o *Orchestrator) State(chatID string) State {
	return o.tracker.State(chatID)
}

// Pending reports whether chatID is waiting for a reply.
func (o *Orchestrator) Pending(chatID string) bool {
	return o.tracker.State(chatID) == StatePending
}

// Wait blocks until every reply started so far has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
