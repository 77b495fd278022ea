package dnssd

import (
	"time"
)

// State is the lifecycle state reported to the host service manager
type State int

const (
	// StateStarting is the initial state while the service table loads
	StateStarting State = iota
	// StateRunning means all workers were started
	StateRunning
	// StateStopPending means a stop was accepted and workers are draining
	StateStopPending
	// StateStopped is terminal
	StateStopped
)

// State string constants
const (
	stateStartingStr    = "starting"
	stateRunningStr     = "running"
	stateStopPendingStr = "stop-pending"
	stateStoppedStr     = "stopped"
	stateUnknownStr     = "unknown"
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateStarting:
		return stateStartingStr
	case StateRunning:
		return stateRunningStr
	case StateStopPending:
		return stateStopPendingStr
	case StateStopped:
		return stateStoppedStr
	default:
		return stateUnknownStr
	}
}

// Accepts is the set of control requests the service currently accepts
type Accepts uint32

const (
	// AcceptStop allows the host to request a stop
	AcceptStop Accepts = 1 << iota
)

// Status is one lifecycle report sent to the host
type Status struct {
	// State is the current lifecycle state
	State State
	// Accepts lists the control requests the service accepts in this state
	Accepts Accepts
	// ExitCode is the process exit code, meaningful once stopped
	ExitCode uint32
	// CheckPoint increments during long pending operations
	CheckPoint uint32
	// WaitHint is how long the host should wait before expecting the next report
	WaitHint time.Duration
}

// StatusReporter sends lifecycle reports to the host. It is owned by the
// Supervisor and never used from worker goroutines.
type StatusReporter interface {
	SetStatus(Status) error
}

// Host is the host service manager's control surface
type Host interface {
	// Register installs handler for control requests addressed to the
	// service called name and returns the handle used to report status.
	Register(name string, handler ControlHandler) (StatusReporter, error)
}
