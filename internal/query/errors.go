package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/store"
)

var (
	// ErrInvalidRange is returned for a malformed session-range expression.
	ErrInvalidRange = errors.New("invalid session range")

	// ErrOutOfRange is returned when a session-range position falls outside
	// the chain.
	ErrOutOfRange = errors.New("session range out of range")
)

// NotFoundError reports an unknown session, slug or message. It wraps
// store.ErrNotFound and may carry close matches for the identifier.
type NotFoundError struct {
	Kind        string // "session", "message"
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }
