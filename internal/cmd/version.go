package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axondata/go-dnssd"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := dnssd.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "dnssd-service %s (%s)\n", info.Version, info.Backend)
		},
	}
}
