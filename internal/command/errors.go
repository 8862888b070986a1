package command

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand indicates Invoke was called with an unregistered name.
	ErrUnknownCommand = errors.New("command: unknown command")

	// ErrBadArguments indicates the arguments could not be decoded.
	ErrBadArguments = errors.New("command: bad arguments")

	// ErrEncode indicates the state snapshot could not be serialized.
	ErrEncode = errors.New("command: state encoding failed")
)

// Error wraps a failure with the command that produced it.
type Error struct {
	Command string
	Wrapped error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}
