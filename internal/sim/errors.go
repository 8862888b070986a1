package sim

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrTickPanic indicates a tick callback panicked and was recovered.
	ErrTickPanic = errors.New("sim: tick panicked")

	// ErrNoBuses indicates a fleet was started without any bus ids.
	ErrNoBuses = errors.New("sim: fleet has no buses")
)

// TickError wraps a failed tick with the bus and tick number it belongs to.
type TickError struct {
	BusID   uuid.UUID
	Tick    uint64
	Wrapped error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("bus %s tick %d: %v", e.BusID, e.Tick, e.Wrapped)
}

func (e *TickError) Unwrap() error {
	return e.Wrapped
}
