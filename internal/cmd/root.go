// Package cmd implements the dnssd-service command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/axondata/go-dnssd"
)

// NewRootCommand builds the command tree. Running the binary without a
// subcommand is the same as "run", which is what a service manager does.
func NewRootCommand() *cobra.Command {
	v := dnssd.NewViper()

	root := &cobra.Command{
		Use:   "dnssd-service",
		Short: "Advertise configured network services over DNS-SD",
		Long: `dnssd-service reads a table of named network services and advertises
each one on the local network with multicast DNS, running as a background
service under the host service manager (Windows SCM or systemd).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return dnssd.BindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, v)
		},
	}

	dnssd.AddFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCommand(v),
		newValidateCommand(v),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// loadSettings decodes the settings bound to v
func loadSettings(v *viper.Viper) (dnssd.Settings, error) {
	return dnssd.LoadSettings(v)
}
