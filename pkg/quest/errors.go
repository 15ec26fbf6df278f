package quest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEnding is returned when an ending label is not declared by the event.
	ErrInvalidEnding = errors.New("quest: invalid ending")
	// ErrEventNotActive is returned by EventUpdate for events the quest is not presenting.
	ErrEventNotActive = errors.New("quest: event not active")
	// ErrAlreadyResolved is returned when an event is resolved a second time.
	ErrAlreadyResolved = errors.New("quest: event already resolved")
	// ErrInvalidGraph is returned by New when the authored graph is malformed.
	ErrInvalidGraph = errors.New("quest: invalid graph")
)

// EndingError reports an ending label that the event does not declare.
type EndingError struct {
	Event  string
	Ending string
}

func (e *EndingError) Error() string {
	return fmt.Sprintf("quest: event %q has no ending %q", e.Event, e.Ending)
}

// Unwrap lets errors.Is match ErrInvalidEnding.
func (e *EndingError) Unwrap() error {
	return ErrInvalidEnding
}

func graphErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}
