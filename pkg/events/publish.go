package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Publisher is the destination for events emitted by the stores and the
// reply orchestrator. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishEvent(e Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(e Event) error

func (f PublisherFunc) PublishEvent(e Event) error {
	return f(e)
}

// PublishBlind publishes e on p, logging instead of returning failures.
// A nil publisher is ignored.
func PublishBlind(p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(e); err != nil {
		log.Warn().Err(err).Str("event_type", string(e.Type())).Msg("failed to publish event")
	}
}

// PublisherManager is used to distribute events to a set of watermill Publishers.
// As such, you "subscribe" a publisher to the given topic.
// When you publish an event, it will get distributed to all publishers
// on the topic they were subscribed with.
//
// The manager also keeps a sequence number for each outgoing message,
// in the order they are handled by PublishEvent.
type PublisherManager struct {
	publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

var _ Publisher = (*PublisherManager)(nil)

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, sub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.publishers[topic] = append(s.publishers[topic], sub)
}

// PublishEvent serializes e to JSON and hands it to every subscribed publisher.
// Failures of individual publishers are logged, not returned.
func (s *PublisherManager) PublishEvent(e Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	for topic, subs := range s.publishers {
		for _, sub := range subs {
			msg := message.NewMessage(watermill.NewUUID(), b)
			msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
			msg.Metadata.Set("event_type", string(e.Type()))
			if err := sub.Publish(topic, msg); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
			}
		}
	}
	s.sequenceNumber++

	return nil
}

// NullPublisher discards all events.
type NullPublisher struct{}

func (NullPublisher) PublishEvent(Event) error {
	return nil
}

var _ Publisher = NullPublisher{}

// Recorder keeps every published event in memory. Useful for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Publisher = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PublishEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]Event, len(r.events))
	copy(ret, r.events)
	return ret
}

func (r *Recorder) OfType(t EventType) []Event {
	var ret []Event
	for _, e := range r.Events() {
		if e.Type() == t {
			ret = append(ret, e)
		}
	}
	return ret
}
