package coffee

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCapacity is returned when no active cards exist or the claimed total
	// exceeds the remaining capacity across all active cards.
	ErrNoCapacity = errors.New("not enough coffee capacity")
	// ErrAlreadyCompleted is returned when operating on a terminal card or session.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrNoActiveSession is returned when an operation requires an active session.
	ErrNoActiveSession = errors.New("no active coffee session")
	ErrNotFound        = errors.New("not found")
	// ErrConcurrentUpdate is returned by stores when a row changed underneath an update.
	ErrConcurrentUpdate = errors.New("concurrent update")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// InsufficientCapacityError is raised by CardPool.Allocate when the pool runs dry
// before every request is covered.
type InsufficientCapacityError struct {
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient coffee capacity: requested %d, available %d (shortage %d)",
		e.Requested, e.Available, e.Requested-e.Available)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrNoCapacity
}

// UserMessage turns an error into text safe to show a participant. Only
// argument errors carry their own wording; everything unexpected is generic.
func UserMessage(err error) string {
	var capErr *InsufficientCapacityError
	switch {
	case errors.As(err, &capErr):
		return fmt.Sprintf("⚠️ Not enough coffees left on the cards: %d requested, %d available.", capErr.Requested, capErr.Available)
	case errors.Is(err, ErrNoCapacity):
		return "⚠️ There are no active coffee cards."
	case errors.Is(err, ErrAlreadyCompleted):
		return "⚠️ That was already completed."
	case errors.Is(err, ErrNoActiveSession):
		return "⚠️ This order is no longer active."
	case errors.Is(err, ErrNotFound):
		return "⚠️ Not found."
	case errors.Is(err, ErrConcurrentUpdate):
		return "⚠️ Someone else changed that at the same time. Please try again."
	case errors.Is(err, ErrInvalidArgument):
		return "⚠️ " + err.Error()
	default:
		return "⚠️ Something went wrong. Please try again."
	}
}
