// Package entity contains the domain types for the lsp-bridge service.
package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

// SessionState is the lifecycle stage of a session bridge.
type SessionState int

const (
	// StateCreated is the initial state, before any resource is acquired.
	StateCreated SessionState = iota
	// StateProvisioned means the workspace exists and the analysis server is running.
	StateProvisioned
	// StateInitializing means the initialize handshake is in flight.
	StateInitializing
	// StateReady means the analysis server accepted the handshake and requests are forwarded.
	StateReady
	// StateClosing means teardown has started.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

var _sessionStateNames = map[SessionState]string{
	StateCreated:      "created",
	StateProvisioned:  "provisioned",
	StateInitializing: "initializing",
	StateReady:        "ready",
	StateClosing:      "closing",
	StateClosed:       "closed",
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	if name, ok := _sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParseSessionState returns the state with the given String name.
func ParseSessionState(name string) (SessionState, error) {
	for state, n := range _sessionStateNames {
		if n == name {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown session state %q", name)
}

// CanTransitionTo reports whether moving from s to next is a legal step of the lifecycle.
// Closing is reachable from every live state; Closed only from Closing.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	switch next {
	case StateProvisioned:
		return s == StateCreated
	case StateInitializing:
		return s == StateProvisioned
	case StateReady:
		return s == StateInitializing
	case StateClosing:
		return s < StateClosing
	case StateClosed:
		return s == StateClosing
	default:
		return false
	}
}

// SessionCloser requests orderly teardown of a live session.
type SessionCloser interface {
	Close(ctx context.Context) error
}

// Session entity representing a single browser connection and the resources it owns.
type Session struct {
	UUID          uuid.UUID     `json:"uuid" zap:"uuid"`
	WorkspacePath string        `json:"workspacePath" zap:"workspacePath"`
	DocumentPath  string        `json:"documentPath" zap:"documentPath"`
	State         SessionState  `json:"state" zap:"state"`
	CreatedAt     time.Time     `json:"createdAt" zap:"createdAt"`
	Closer        SessionCloser `json:"-" zap:"-"`
}

// Workspace is a per-session scratch copy of the project template.
type Workspace struct {
	// Path is the absolute workspace root.
	Path string
	// DocumentPath is the absolute path of the single document the session manages.
	DocumentPath string
}
