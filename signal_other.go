//go:build !unix

package dnssd

import (
	"os"
)

var (
	stopSignals        = []os.Signal{os.Interrupt}
	interrogateSignals []os.Signal
)
