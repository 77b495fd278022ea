// Command dnssd-service advertises configured network services over DNS-SD.
package main

import (
	"os"

	"github.com/axondata/go-dnssd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
