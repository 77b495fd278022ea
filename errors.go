package dnssd

import (
	"errors"
	"fmt"
)

// Common errors returned by dnssd operations
var (
	// ErrConfig indicates the service table could not be read or decoded
	ErrConfig = errors.New("dnssd: invalid config")

	// ErrBaseDirUnset indicates the environment variable naming the config base directory is missing
	ErrBaseDirUnset = errors.New("dnssd: config base directory not set")

	// ErrPortAllocation indicates no ephemeral port could be obtained for a service
	ErrPortAllocation = errors.New("dnssd: port allocation failed")

	// ErrRegistration indicates an advertisement could not be published
	ErrRegistration = errors.New("dnssd: registration failed")

	// ErrHostStatus indicates the lifecycle state could not be reported to the host
	ErrHostStatus = errors.New("dnssd: host status report failed")

	// ErrChannelReceive indicates the control event queue was closed unexpectedly
	ErrChannelReceive = errors.New("dnssd: control channel receive")

	// ErrMissingField indicates a required config field is absent
	ErrMissingField = errors.New("missing required field")

	// ErrPortRange indicates a port outside 0..65535
	ErrPortRange = errors.New("port out of range")

	errNilRegistration = errors.New("registrar returned no registration")
)

// ConfigError describes a service table that could not be loaded
type ConfigError struct {
	// Path is the config file path
	Path string
	// Field is the dotted field path at fault, empty when the whole document failed
	Field string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("dnssd config %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("dnssd config %q: %s: %v", e.Path, e.Field, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports every ConfigError as ErrConfig
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// OpError represents a failure of one lifecycle operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Service is the service table key involved, empty for process-wide operations
	Service string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("dnssd %s: %v", e.Op.String(), e.Err)
	}
	return fmt.Sprintf("dnssd %s %q: %v", e.Op.String(), e.Service, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error belonging to the failed operation
func (e *OpError) Is(target error) bool {
	switch e.Op {
	case OpAllocatePort:
		return target == ErrPortAllocation
	case OpRegister:
		return target == ErrRegistration
	case OpReportStatus, OpHostRegister:
		return target == ErrHostStatus
	case OpReceive:
		return target == ErrChannelReceive
	case OpLoadConfig:
		return target == ErrConfig
	default:
		return false
	}
}

// MultiError aggregates errors from per-service setup
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
