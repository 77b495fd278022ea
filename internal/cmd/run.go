package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/axondata/go-dnssd"
	"github.com/axondata/go-dnssd/internal/logging"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the advertisement service",
		Long: `Load the service table, advertise every entry and keep running until the
host service manager (or SIGINT/SIGTERM in the foreground) asks it to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd, v)
		},
	}
}

func runService(cmd *cobra.Command, v *viper.Viper) error {
	settings, err := loadSettings(v)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(settings.LogFile, settings.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	configPath, err := settings.ResolveConfigPath(os.LookupEnv)
	if err != nil {
		logger.Error("locating service table", "error", err.Error())
		return err
	}

	logger = logger.With("unit", settings.ServiceName)
	logger.Info("starting", "version", dnssd.Version, "config", configPath)

	sup := dnssd.NewSupervisor(
		dnssd.DefaultHost(logger),
		&dnssd.ZeroconfRegistrar{Domain: settings.Domain},
		settings.SupervisorOptions(configPath, logger)...,
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := sup.Run(ctx); err != nil {
		logger.Error("service exited with error", "error", err.Error())
		return err
	}

	logger.Info("stopped")
	return nil
}
