package manager

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Error kinds. Handlers reply to every kind except ErrAuthority, which is
// dropped silently.
var (
	ErrValidation = eris.New("validation")
	ErrCapacity   = eris.New("capacity")
	ErrConflict   = eris.New("conflict")
	ErrAuthority  = eris.New("authority")
	ErrNotFound   = eris.New("not found")
)

// Error is a rejected operation. Its message is safe to show to players.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func fail(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
