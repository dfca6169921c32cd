// Package link owns the single connection between the bridge and the
// vehicle: which target is active, whether commands may flow, and how
// transport events move it between states.
package link

import (
	"encoding/json"
	"errors"
)

// State is the link lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the link state as reported to operator consoles.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// statusOf maps a State to what consoles see. Connecting is reported as
// disconnected.
func statusOf(s State) Status {
	switch s {
	case Connected:
		return StatusConnected
	case Error:
		return StatusError
	default:
		return StatusDisconnected
	}
}

// ConnectionStatus is the payload of rov:connection-status.
type ConnectionStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// Event is a transport event fed to the state machine.
type Event interface {
	isEvent()
}

// Opened reports that the transport is usable.
type Opened struct{}

// ErrorOccurred reports a transport failure.
type ErrorOccurred struct {
	Err error
}

// Closed reports that the transport is gone.
type Closed struct{}

func (Opened) isEvent()        {}
func (ErrorOccurred) isEvent() {}
func (Closed) isEvent()        {}

// Notifier receives everything the manager wants operators to see.
// Implementations must not block and must not call back into the Manager.
type Notifier interface {
	Log(message string)
	Status(status ConnectionStatus)
	Telemetry(data json.RawMessage)
}

var (
	ErrEmptyTarget = errors.New("no target was provided")
	ErrNotReady    = errors.New("link is not connected")
)
