package dnssd

import (
	"time"
)

// Service identity and file layout defaults
const (
	// DefaultServiceName is the name the process registers under with the host service manager
	DefaultServiceName = "dnssd-service"

	// DefaultConfigDir is the directory below the environment-provided base directory
	DefaultConfigDir = "dnssd-service"

	// ConfigFileName is the service table file name inside the config directory
	ConfigFileName = "config.toml"

	// DefaultDomain is the mDNS domain advertisements are published in
	DefaultDomain = "local."

	// DefaultPortAddress is the address probed for an ephemeral TCP port
	DefaultPortAddress = "localhost:0"
)

// Supervisor timing defaults
const (
	// DefaultPollInterval bounds how long the control loop blocks waiting for an event
	DefaultPollInterval = 1 * time.Second

	// DefaultDrainTimeout bounds how long StopPending waits for workers to unregister
	DefaultDrainTimeout = 5 * time.Second

	// DefaultEventBuffer is the capacity of the control event queue
	DefaultEventBuffer = 8

	// DefaultWatchDebounce coalesces bursts of config file events
	DefaultWatchDebounce = 250 * time.Millisecond
)

// File modes
const (
	// DirMode is the default mode for created directories
	DirMode = 0o755

	// FileMode is the default mode for created files
	FileMode = 0o644
)

// Operation identifies the step of the service lifecycle an error came from
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpLoadConfig reads and decodes the service table
	OpLoadConfig
	// OpAllocatePort probes the OS for a free TCP port
	OpAllocatePort
	// OpRegister publishes an advertisement
	OpRegister
	// OpReportStatus tells the host service manager the lifecycle state
	OpReportStatus
	// OpReceive reads from the control event queue
	OpReceive
	// OpHostRegister installs the control handler with the host
	OpHostRegister
)

// Operation string constants
const (
	opUnknownStr      = "unknown"
	opLoadConfigStr   = "load-config"
	opAllocatePortStr = "allocate-port"
	opRegisterStr     = "register"
	opReportStatusStr = "report-status"
	opReceiveStr      = "receive"
	opHostRegisterStr = "host-register"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpLoadConfig:
		return opLoadConfigStr
	case OpAllocatePort:
		return opAllocatePortStr
	case OpRegister:
		return opRegisterStr
	case OpReportStatus:
		return opReportStatusStr
	case OpReceive:
		return opReceiveStr
	case OpHostRegister:
		return opHostRegisterStr
	default:
		return opUnknownStr
	}
}
