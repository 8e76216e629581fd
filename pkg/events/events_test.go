package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewEventFromJson(t *testing.T) {
	b, err := json.Marshal(NewReplyFailedEvent("c1", "sub1", errors.New("boom"), t0))
	require.NoError(t, err)

	ev, err := NewEventFromJson(b)
	require.NoError(t, err)
	failed, ok := ev.(*EventReplyFailed)
	require.True(t, ok)
	assert.Equal(t, EventTypeReplyFailed, failed.Type())
	assert.Equal(t, "c1", failed.ChatID())
	assert.Equal(t, "sub1", failed.SubmissionID)
	assert.Equal(t, "boom", failed.Error)
	assert.True(t, t0.Equal(failed.Time()))

	_, err = NewEventFromJson([]byte(`{"type": "no-such-event"}`))
	assert.Error(t, err)
	_, err = NewEventFromJson([]byte(`not json`))
	assert.Error(t, err)
}

func TestPublisherManagerSequence(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{BlockPublishUntilSubscriberAck: true}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := pubSub.Subscribe(ctx, TopicChat)
	require.NoError(t, err)

	received := make(chan *message.Message, 2)
	go func() {
		for m := range msgs {
			m.Ack()
			received <- m
		}
	}()

	pm := NewPublisherManager()
	pm.SubscribePublisher(TopicChat, pubSub)
	require.NoError(t, pm.PublishEvent(NewChatCreatedEvent("c1", "New Chat", t0)))
	require.NoError(t, pm.PublishEvent(NewProfileUpdatedEvent("Bob", t0)))

	m1 := <-received
	m2 := <-received
	assert.Equal(t, "0", m1.Metadata.Get("sequence_number"))
	assert.Equal(t, string(EventTypeChatCreated), m1.Metadata.Get("event_type"))
	assert.Equal(t, "1", m2.Metadata.Get("sequence_number"))

	ev, err := NewEventFromJson(m2.Payload)
	require.NoError(t, err)
	assert.Equal(t, "Bob", ev.(*EventProfileUpdated).Name)
	assert.Empty(t, ev.ChatID())
}

func TestEventRouterDeliversEvents(t *testing.T) {
	r, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
	}()

	got := make(chan Event, 1)
	r.AddEventHandler("test", func(ev Event) error {
		got <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()
	<-r.Running()
	assert.True(t, r.IsRunning())

	pm := NewPublisherManager()
	pm.SubscribePublisher(TopicChat, r.Publisher)
	require.NoError(t, pm.PublishEvent(NewChatDeletedEvent("c1", true, t0)))

	ev := <-got
	deleted, ok := ev.(*EventChatDeleted)
	require.True(t, ok)
	assert.Equal(t, "c1", deleted.ChatID())
	assert.True(t, deleted.WasSelected)

	cancel()
	require.NoError(t, <-done)
}

func TestDumpRawEvents(t *testing.T) {
	r, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = r.Close()
	}()

	b, err := json.Marshal(NewChatCreatedEvent("c1", "New Chat", t0))
	require.NoError(t, err)
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", "7")

	var out bytes.Buffer
	require.NoError(t, r.DumpRawEvents(&out)(msg))
	assert.Contains(t, out.String(), `"type": "chat-created"`)
	assert.Contains(t, out.String(), `"title": "New Chat"`)
	assert.NotContains(t, out.String(), `"time"`)
	assert.NotContains(t, out.String(), "sequence_number")
}

func TestPublishBlind(t *testing.T) {
	PublishBlind(nil, NewProfileUpdatedEvent("x", t0))

	calls := 0
	PublishBlind(PublisherFunc(func(e Event) error {
		calls++
		return errors.New("closed")
	}), NewProfileUpdatedEvent("x", t0))
	assert.Equal(t, 1, calls)

	rec := NewRecorder()
	PublishBlind(rec, NewProfileUpdatedEvent("x", t0))
	PublishBlind(rec, NewChatCreatedEvent("c1", "New Chat", t0))
	assert.Len(t, rec.Events(), 2)
	assert.Len(t, rec.OfType(EventTypeChatCreated), 1)
	assert.NoError(t, NullPublisher{}.PublishEvent(NewProfileUpdatedEvent("x", t0)))
}

func TestEventLogObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger.Info().Object("event", NewChatDeletedEvent("c1", false, t0)).Msg("event")
	assert.Contains(t, buf.String(), `"type":"chat-deleted"`)
	assert.Contains(t, buf.String(), `"chat_id":"c1"`)

	buf.Reset()
	logger.Info().Object("event", NewProfileUpdatedEvent("Bob", t0)).Msg("event")
	assert.Contains(t, buf.String(), `"type":"profile-updated"`)
	assert.NotContains(t, buf.String(), "chat_id")
}
