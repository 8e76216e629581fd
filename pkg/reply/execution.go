package reply

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
)

var ErrExecutionHandleNil = errors.New("execution handle is nil")

// ExecutionHandle represents a single submitted message waiting for its reply.
//
// The chat is idle again by the time Wait returns.
type ExecutionHandle struct {
	ChatID       string
	SubmissionID string

	done chan struct{}

	mu    sync.Mutex
	reply conversation.Message
	err   error
}

func newExecutionHandle(chatID, submissionID string) *ExecutionHandle {
	return &ExecutionHandle{
		ChatID:       chatID,
		SubmissionID: submissionID,
		done:         make(chan struct{}),
	}
}

func (h *ExecutionHandle) setResult(reply conversation.Message, err error) {
	h.mu.Lock()
	h.reply = reply
	h.err = err
	close(h.done)
	h.mu.Unlock()
}

// Wait blocks until the reply settles and returns the stored assistant message.
// A failed reply returns an error matching errs.ErrBackendFailure, a reply
// for a deleted chat returns ErrReplyDiscarded.
func (h *ExecutionHandle) Wait() (conversation.Message, error) {
	if h == nil {
		return conversation.Message{}, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reply, h.err
}

// Done is closed once the reply settles.
func (h *ExecutionHandle) Done() <-chan struct{} {
	return h.done
}

// IsRunning reports whether the reply appears to still be outstanding.
func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
