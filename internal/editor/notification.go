package editor

import (
	"errors"
	"fmt"
	"time"

	"plotline/internal/domain"
)

// Level is a notification severity
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing message about an operation
type Notification struct {
	Level   Level
	Op      string
	Message string
	Err     error
	At      time.Time
}

// Transient reports whether the failure was a transport problem rather
// than the server rejecting the operation
func (n Notification) Transient() bool {
	if n.Err == nil {
		return false
	}
	return !errors.Is(n.Err, domain.ErrNotFound) &&
		!errors.Is(n.Err, domain.ErrConflict) &&
		!errors.Is(n.Err, domain.ErrValidation)
}

func (s *Session) notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	if s.onNotify != nil {
		s.onNotify(n)
	}
}

func (s *Session) notifyError(op string, err error) {
	s.logger.Warn("operation failed", "op", op, "error", err)
	s.notify(Notification{
		Level:   LevelError,
		Op:      op,
		Message: fmt.Sprintf("%s failed: %v", op, err),
		Err:     err,
	})
}
