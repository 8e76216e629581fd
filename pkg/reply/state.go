package reply

import "sync"

// State is the per-chat reply state. A chat moves idle -> pending -> idle.
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
)

// Tracker holds the reply state of every chat. Chats without an entry are idle.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		pending: map[string]struct{}{},
	}
}

// TryAcquire moves chatID from idle to pending. It returns false, changing
// nothing, if the chat is already pending.
func (t *Tracker) TryAcquire(chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[chatID]; ok {
		return false
	}
	t.pending[chatID] = struct{}{}
	return true
}

// Release moves chatID back to idle. Releasing an idle chat is a no-op.
func (t *Tracker) Release(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, chatID)
}

func (t *Tracker) State(chatID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[chatID]; ok {
		return StatePending
	}
	return StateIdle
}

// PendingCount returns how many chats are waiting for a reply.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
