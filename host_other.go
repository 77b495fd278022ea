//go:build !windows

package dnssd

import (
	"github.com/axondata/go-dnssd/internal/logging"
)

// DefaultHost returns the host for this platform
func DefaultHost(logger *logging.Logger) Host {
	return NewSignalHost(logger)
}
