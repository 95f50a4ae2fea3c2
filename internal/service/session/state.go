// Package session provides voice session ids and lifecycle management.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a voice session.
type State int

const (
	// StateConnecting - Client accepted, agent connection being opened.
	StateConnecting State = iota
	// StateActive - Audio and agent events are flowing.
	StateActive
	// StateClosing - Teardown in progress.
	StateClosing
	// StateClosed - All resources released. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is CLOSED.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// Errors for invalid state transitions.
var (
	ErrNotConnecting = errors.New("session is not connecting")
	ErrSessionClosed = errors.New("session is closing or closed")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	CONNECTING → ACTIVE → CLOSING → CLOSED
//	     │                   ▲
//	     └── BeginClose() ───┘
//
// Rules:
//   - Activate is only valid from CONNECTING.
//   - BeginClose is valid from CONNECTING or ACTIVE and succeeds once.
//   - Close is valid from any state and is idempotent.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionID string
	state     State
}

// NewLifecycle creates a new session lifecycle in CONNECTING state.
func NewLifecycle(sessionID string) *Lifecycle {
	return &Lifecycle{
		sessionID: sessionID,
		state:     StateConnecting,
	}
}

// SessionID returns the session ID.
func (l *Lifecycle) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsActive returns true if audio may be forwarded.
func (l *Lifecycle) IsActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateActive
}

// IsClosed returns true if the session reached CLOSED.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Activate transitions CONNECTING to ACTIVE.
func (l *Lifecycle) Activate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateConnecting:
		l.state = StateActive
		return nil
	case StateClosing, StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotConnecting
	}
}

// BeginClose transitions to CLOSING. Returns true for the caller that won
// the transition, false if teardown already started.
func (l *Lifecycle) BeginClose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosing || l.state == StateClosed {
		return false
	}
	l.state = StateClosing
	return true
}

// Close transitions the session to CLOSED state.
// Can be called from any state. Idempotent.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
