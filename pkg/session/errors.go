package session

import (
	"fmt"

	"github.com/go-go-golems/chatdesk/pkg/errs"
)

// NotFoundError reports an operation on a chat id the store does not hold.
type NotFoundError struct {
	ChatID string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return errs.ErrNotFound.Error()
	}
	return fmt.Sprintf("chat %q %s", e.ChatID, errs.ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == errs.ErrNotFound }

// ErrChatNotFound matches every NotFoundError returned by the store.
var ErrChatNotFound = errs.ErrNotFound
