package api

import (
	"encoding/json"
	"fmt"

	"github.com/san-kum/bussim/internal/sim"
)

const (
	FrameState   = "state"
	FrameResult  = "result"
	FrameCommand = "command"
)

// Frame is one websocket message in either direction. Clients send command
// frames carrying Command and Args; the hub answers each with a result
// frame on the same socket, interleaved with state frames.
type Frame struct {
	Type    string          `json:"type"`
	Command string          `json:"command,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	State   *sim.Snapshot   `json:"state,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// APIError is a non-2xx response seen by the Client.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}
