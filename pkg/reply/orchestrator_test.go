package reply

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatdesk/pkg/backend"
	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/errs"
	"github.com/go-go-golems/chatdesk/pkg/events"
	"github.com/go-go-golems/chatdesk/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingBackend holds every reply until release is closed.
type blockingBackend struct {
	started chan struct{}
	release chan struct{}
	reply   string
	err     error
}

func newBlockingBackend(reply string) *blockingBackend {
	return &blockingBackend{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		reply:   reply,
	}
}

func (b *blockingBackend) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return b.reply, b.err
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestOrchestrator(t *testing.T, b backend.Backend, options ...Option) (*Orchestrator, *session.Store, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	store := session.NewStore(session.WithClock(fixedClock()))
	options = append([]Option{WithPublisher(rec), WithClock(fixedClock())}, options...)
	return NewOrchestrator(store, b, options...), store, rec
}

func TestSubmitShortTitle(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, backend.NewEchoBackend())
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "  short  ")
	require.NoError(t, err)
	reply, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAssistant, reply.Role)
	assert.Equal(t, "short", reply.Content)

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	assert.Equal(t, "short", chat.Title)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, conversation.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, "short", chat.Messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, chat.Messages[1].Role)
	assert.False(t, o.Pending(id))
}

func TestSubmitLongTitleAndOnlyOnce(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, backend.NewEchoBackend())
	id := store.CreateChat()

	text := strings.Repeat("abcdefghij", 4)
	h, err := o.Submit(context.Background(), id, text)
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	assert.Equal(t, text[:30]+"...", chat.Title)

	h, err = o.Submit(context.Background(), id, "something else entirely")
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	chat, err = store.GetChat(id)
	require.NoError(t, err)
	assert.Equal(t, text[:30]+"...", chat.Title)
	assert.Len(t, chat.Messages, 4)
}

func TestSubmitTitlesChatCreatedEarlier(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, backend.NewEchoBackend())
	id := store.CreateChat()
	store.CreateChat()

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	require.Equal(t, conversation.PlaceholderTitle, chat.Title)

	h, err := o.Submit(context.Background(), id, "hello world")
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	chat, err = store.GetChat(id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", chat.Title)
	assert.Len(t, chat.Messages, 2)
}

func TestSubmitSingleFlight(t *testing.T) {
	b := newBlockingBackend("answer")
	o, store, _ := newTestOrchestrator(t, b)
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "first")
	require.NoError(t, err)
	<-b.started
	assert.True(t, o.Pending(id))
	assert.Equal(t, StatePending, o.State(id))
	assert.True(t, h.IsRunning())
	select {
	case <-h.Done():
		t.Fatal("handle settled before the backend replied")
	default:
	}

	_, err = o.Submit(context.Background(), id, "second")
	assert.ErrorIs(t, err, ErrReplyPending)

	close(b.release)
	<-h.Done()
	_, err = h.Wait()
	require.NoError(t, err)
	assert.False(t, h.IsRunning())
	assert.Equal(t, StateIdle, o.State(id))

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "first", chat.Messages[0].Content)
	assert.Equal(t, "answer", chat.Messages[1].Content)
}

func TestSubmitConcurrentSameChat(t *testing.T) {
	b := newBlockingBackend("answer")
	o, store, _ := newTestOrchestrator(t, b)
	id := store.CreateChat()

	var accepted, rejected atomic.Int32
	handles := make(chan *ExecutionHandle, 8)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			h, err := o.Submit(context.Background(), id, "hello")
			switch {
			case err == nil:
				accepted.Add(1)
				handles <- h
				return nil
			case errors.Is(err, ErrReplyPending):
				rejected.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(7), rejected.Load())

	close(b.release)
	_, err := (<-handles).Wait()
	require.NoError(t, err)

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 2)
}

func TestSubmitDifferentChatsIndependent(t *testing.T) {
	b := newBlockingBackend("answer")
	o, store, _ := newTestOrchestrator(t, b)
	a := store.CreateChat()
	c := store.CreateChat()

	ha, err := o.Submit(context.Background(), a, "to a")
	require.NoError(t, err)
	hc, err := o.Submit(context.Background(), c, "to c")
	require.NoError(t, err)
	<-b.started
	<-b.started
	assert.Equal(t, 2, o.tracker.PendingCount())

	close(b.release)
	_, err = ha.Wait()
	require.NoError(t, err)
	_, err = hc.Wait()
	require.NoError(t, err)
	o.Wait()
}

func TestSubmitBackendFailure(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	b := backend.Func(func(ctx context.Context, history []conversation.Message) (string, error) {
		if fail.Load() {
			return "", errors.New("connection refused")
		}
		return "better now", nil
	})
	o, store, rec := newTestOrchestrator(t, b)
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "hello")
	require.NoError(t, err)
	_, err = h.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrBackendFailure)
	assert.Contains(t, err.Error(), "connection refused")

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, conversation.RoleUser, chat.Messages[0].Role)
	assert.False(t, o.Pending(id))

	failed := rec.OfType(events.EventTypeReplyFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ChatID())
	assert.Equal(t, h.SubmissionID, failed[0].(*events.EventReplyFailed).SubmissionID)

	fail.Store(false)
	h, err = o.Submit(context.Background(), id, "retry")
	require.NoError(t, err)
	reply, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "better now", reply.Content)

	chat, err = store.GetChat(id)
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 3)
}

func TestSubmitEmptyReplyIsFailure(t *testing.T) {
	b := backend.Func(func(ctx context.Context, history []conversation.Message) (string, error) {
		return "   ", nil
	})
	o, store, _ := newTestOrchestrator(t, b)
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "hello")
	require.NoError(t, err)
	_, err = h.Wait()
	assert.ErrorIs(t, err, errs.ErrBackendFailure)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestSubmitCancelledContext(t *testing.T) {
	b := newBlockingBackend("never")
	o, store, _ := newTestOrchestrator(t, b)
	id := store.CreateChat()

	ctx, cancel := context.WithCancel(context.Background())
	h, err := o.Submit(ctx, id, "hello")
	require.NoError(t, err)
	<-b.started
	cancel()

	_, err = h.Wait()
	assert.ErrorIs(t, err, errs.ErrBackendFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, o.Pending(id))
}

func TestDeleteWhilePending(t *testing.T) {
	b := newBlockingBackend("too late")
	o, store, rec := newTestOrchestrator(t, b)
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "hello")
	require.NoError(t, err)
	<-b.started
	require.NoError(t, store.DeleteChat(id))

	close(b.release)
	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrReplyDiscarded)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.False(t, o.Pending(id))
	assert.Equal(t, 0, store.Len())

	completed := rec.OfType(events.EventTypeReplyCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].(*events.EventReplyCompleted).Discarded)
	assert.Empty(t, rec.OfType(events.EventTypeReplyFailed))
}

func TestSubmitRejectsBlankText(t *testing.T) {
	o, store, rec := newTestOrchestrator(t, backend.NewEchoBackend())
	id := store.CreateChat()
	before := len(rec.Events())

	_, err := o.Submit(context.Background(), id, "   \n\t")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.False(t, o.Pending(id))
	assert.Len(t, rec.Events(), before)

	chat, err := store.GetChat(id)
	require.NoError(t, err)
	assert.Empty(t, chat.Messages)
	assert.Equal(t, conversation.PlaceholderTitle, chat.Title)
}

func TestSubmitUnknownChat(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, backend.NewEchoBackend())

	_, err := o.Submit(context.Background(), "nope", "hello")
	assert.ErrorIs(t, err, session.ErrChatNotFound)
	assert.False(t, o.Pending("nope"))
}

func TestSubmitEvents(t *testing.T) {
	o, store, rec := newTestOrchestrator(t, backend.NewEchoBackend())
	id := store.CreateChat()

	h, err := o.Submit(context.Background(), id, "hello")
	require.NoError(t, err)
	_, err = h.Wait()
	require.NoError(t, err)

	var types []events.EventType
	for _, e := range rec.Events() {
		types = append(types, e.Type())
	}
	assert.Equal(t, []events.EventType{
		events.EventTypeChatCreated,
		events.EventTypeMessageAppended,
		events.EventTypeReplyStarted,
		events.EventTypeMessageAppended,
		events.EventTypeReplyCompleted,
	}, types)

	started := rec.OfType(events.EventTypeReplyStarted)[0].(*events.EventReplyStarted)
	assert.Equal(t, h.SubmissionID, started.SubmissionID)
	assert.Equal(t, id, h.ChatID)
}

func TestSubmitHistoryWindow(t *testing.T) {
	var seen []int
	b := backend.Func(func(ctx context.Context, history []conversation.Message) (string, error) {
		seen = append(seen, len(history))
		return "ok", nil
	})
	w, err := backend.NewWindow(0, 2)
	require.NoError(t, err)
	o, store, _ := newTestOrchestrator(t, b, WithHistoryWindow(w))
	id := store.CreateChat()

	for _, text := range []string{"one", "two", "three"} {
		h, err := o.Submit(context.Background(), id, text)
		require.NoError(t, err)
		_, err = h.Wait()
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 2}, seen)
}

func TestNilExecutionHandle(t *testing.T) {
	var h *ExecutionHandle
	_, err := h.Wait()
	assert.ErrorIs(t, err, ErrExecutionHandleNil)
	assert.False(t, h.IsRunning())
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateIdle, tr.State("a"))
	assert.True(t, tr.TryAcquire("a"))
	assert.False(t, tr.TryAcquire("a"))
	assert.True(t, tr.TryAcquire("b"))
	assert.Equal(t, 2, tr.PendingCount())
	tr.Release("a")
	tr.Release("a")
	assert.Equal(t, StateIdle, tr.State("a"))
	assert.Equal(t, StatePending, tr.State("b"))
}
