package transport

import (
	"errors"
	"fmt"
)

type StateKind int

const (
	StateIdle StateKind = iota
	StateListening
	StateConnected
	StateDisconnected
	StateFailed
	StateStopped
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// State is a snapshot of the receiver lifecycle.
type State struct {
	Kind StateKind
	Addr string // listening address
	Peer string // connected client, if any
	Err  error  // failure cause for StateFailed
}

// Terminal reports whether no further accepts can happen.
func (s State) Terminal() bool {
	return s.Kind == StateFailed || s.Kind == StateStopped
}

func (s State) String() string {
	switch s.Kind {
	case StateListening:
		return fmt.Sprintf("listening on %s", s.Addr)
	case StateConnected:
		return fmt.Sprintf("connected to %s", s.Peer)
	case StateDisconnected:
		return fmt.Sprintf("disconnected from %s", s.Peer)
	case StateFailed:
		return fmt.Sprintf("failed: %v", s.Err)
	default:
		return s.Kind.String()
	}
}

var ErrAlreadyStarted = errors.New("receiver already started")

// BindError reports a listening address that could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
