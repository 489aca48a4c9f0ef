package transport

import "errors"

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ConnectionState is an observable snapshot of the transport connection.
type ConnectionState struct {
	State State
	// Attempts is the count of consecutive failed connection attempts.
	Attempts int
	// LastErr is the most recent connection error, if any.
	LastErr error
}

var (
	// ErrNotConnected is returned by Send when the transport is not in the
	// connected state. Callers react to it deterministically instead of
	// relying on logged warnings.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrReconnectExhausted is recorded as the terminal connection error once
	// the configured number of reconnect attempts has been used up.
	ErrReconnectExhausted = errors.New("transport: reconnect attempts exhausted")
)
