// Package profile holds the user's display name.
package profile

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/errs"
	"github.com/go-go-golems/chatdesk/pkg/events"
)

const DefaultName = "Guest"

type Profile struct {
	Name string `json:"name" yaml:"name"`
}

// Store is a thread-safe holder for the current Profile.
type Store struct {
	mu        sync.RWMutex
	profile   Profile
	now       func() time.Time
	publisher events.Publisher
}

type StoreOption func(*Store)

func WithPublisher(p events.Publisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithName sets the initial name. Blank names keep DefaultName.
func WithName(name string) StoreOption {
	return func(s *Store) {
		if name = strings.TrimSpace(name); name != "" {
			s.profile.Name = name
		}
	}
}

func NewStore(options ...StoreOption) *Store {
	ret := &Store{
		profile:   Profile{Name: DefaultName},
		now:       time.Now,
		publisher: events.NullPublisher{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Store) GetProfile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetName replaces the name with the trimmed value of name.
func (s *Store) SetName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &errs.ValidationError{Field: "name", Reason: "name must not be blank"}
	}

	s.mu.Lock()
	s.profile.Name = name
	s.mu.Unlock()

	log.Debug().Str("name", name).Msg("profile updated")
	events.PublishBlind(s.publisher, events.NewProfileUpdatedEvent(name, s.now()))
	return nil
}
