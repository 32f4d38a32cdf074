package room

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound means the code does not name a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidAction wraps every rejected client action.
	ErrInvalidAction = errors.New("invalid action")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, fmt.Sprintf(format, args...))
}
