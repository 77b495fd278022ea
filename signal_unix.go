//go:build unix

package dnssd

import (
	"os"
	"syscall"
)

var (
	stopSignals        = []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrogateSignals = []os.Signal{syscall.SIGUSR1}
)
