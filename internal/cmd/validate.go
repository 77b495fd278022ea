package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/axondata/go-dnssd"
)

func newValidateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the service table and print its entries",
		Long:  `Load the service table exactly as "run" would and print every entry without advertising it.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := loadSettings(v)
			if err != nil {
				return err
			}

			path, err := settings.ResolveConfigPath(os.LookupEnv)
			if err != nil {
				return err
			}

			table, err := dnssd.LoadServiceTable(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d service(s)\n", path, len(table))
			for _, key := range table.Keys() {
				spec := table[key]
				port := fmt.Sprintf("%d", spec.Port)
				if spec.AutoPort() {
					port = "auto"
				}
				fmt.Fprintf(out, "  %s: %q %s port=%s%s\n", key, spec.Name, spec.Type, port, formatText(spec.Text))
			}
			return nil
		},
	}
}

func formatText(text map[string]string) string {
	if len(text) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(text))
	for _, k := range slices.Sorted(maps.Keys(text)) {
		pairs = append(pairs, k+"="+text[k])
	}
	return " txt=[" + strings.Join(pairs, " ") + "]"
}
