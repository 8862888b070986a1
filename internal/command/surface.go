package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/san-kum/bussim/internal/sim"
)

const (
	GetGlobalState        = "get_global_state"
	ToggleBus             = "toggle_bus"
	UpdateSimulationSpeed = "update_simulation_speed"
	UpdateRefreshRate     = "update_refresh_rate"
)

// Names lists every command Invoke accepts.
var Names = []string{GetGlobalState, ToggleBus, UpdateSimulationSpeed, UpdateRefreshRate}

type Surface struct {
	store  *sim.Store
	logger *log.Logger
	encode func(v any) ([]byte, error)
}

func New(store *sim.Store, logger *log.Logger) *Surface {
	if store == nil {
		panic("command.New: store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Surface{store: store, logger: logger, encode: json.Marshal}
}

// Snapshot returns a copy of the current state.
func (s *Surface) Snapshot() sim.Snapshot {
	return s.store.Read()
}

// GetGlobalState serializes the full current state to JSON.
func (s *Surface) GetGlobalState() (string, error) {
	data, err := s.encode(s.store.Read())
	if err != nil {
		s.logger.Printf("command: %s: %v", GetGlobalState, err)
		return "", &Error{Command: GetGlobalState, Wrapped: fmt.Errorf("%w: %v", ErrEncode, err)}
	}
	return string(data), nil
}

// ToggleBus flips the active flag of a bus. An unknown id is created
// inactive first, so the first toggle leaves it active at 0%.
func (s *Surface) ToggleBus(id uuid.UUID) {
	s.store.Mutate(func(w *sim.World) {
		b := w.Ensure(id, false)
		b.IsActive = !b.IsActive
	})
}

func (s *Surface) UpdateSimulationSpeed(speed uint32) {
	s.store.Mutate(func(w *sim.World) {
		w.Speed = speed
	})
}

func (s *Surface) UpdateRefreshRate(refreshRate uint64) {
	s.store.Mutate(func(w *sim.World) {
		w.RefreshRate = refreshRate
	})
}

type toggleArgs struct {
	BusID uuid.UUID `json:"busId"`
}

type speedArgs struct {
	Speed uint32 `json:"speed"`
}

type refreshArgs struct {
	RefreshRate uint64 `json:"refreshRate"`
}

// Invoke runs the named command. args is a JSON object, or empty for
// commands without arguments. The result is the state string for
// get_global_state and nil for the others.
func (s *Surface) Invoke(name string, args json.RawMessage) (any, error) {
	switch name {
	case GetGlobalState:
		return s.GetGlobalState()
	case ToggleBus:
		var a toggleArgs
		if err := decodeArgs(name, args, &a, "busId"); err != nil {
			return nil, err
		}
		s.ToggleBus(a.BusID)
		return nil, nil
	case UpdateSimulationSpeed:
		var a speedArgs
		if err := decodeArgs(name, args, &a, "speed"); err != nil {
			return nil, err
		}
		s.UpdateSimulationSpeed(a.Speed)
		return nil, nil
	case UpdateRefreshRate:
		var a refreshArgs
		if err := decodeArgs(name, args, &a, "refreshRate"); err != nil {
			return nil, err
		}
		s.UpdateRefreshRate(a.RefreshRate)
		return nil, nil
	}
	return nil, &Error{Command: name, Wrapped: fmt.Errorf("%w (known: %s)", ErrUnknownCommand, strings.Join(Names, ", "))}
}

func decodeArgs(name string, raw json.RawMessage, dst any, required string) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Error{Command: name, Wrapped: fmt.Errorf("%w: missing %s", ErrBadArguments, required)}
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return &Error{Command: name, Wrapped: fmt.Errorf("%w: %v", ErrBadArguments, err)}
	}
	if _, ok := keys[required]; !ok {
		return &Error{Command: name, Wrapped: fmt.Errorf("%w: missing %s", ErrBadArguments, required)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Command: name, Wrapped: fmt.Errorf("%w: %v", ErrBadArguments, err)}
	}
	return nil
}
