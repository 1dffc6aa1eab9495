package cmd

import (
	"context"
	"os/signal"
	"syscall"

	clientcmd "co2exporter/v0/cmd/client_cmd"
	"co2exporter/v0/internal/config"
	cobra "github.com/spf13/cobra"
)

// RootContext is the cancellation context handed to every sub-command
// through cobra's ExecuteContext.
type RootContext struct {
	Context context.Context
	Cancel  context.CancelFunc
}

// Shared among all commands.
var (
	rootCtx RootContext
)

// initRootContext instantiates a root context, cancelled on SIGINT or
// SIGTERM, for which to be used in sub-commands.
func initRootContext() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	rootCtx.Context = ctx
	rootCtx.Cancel = cancel
}

// Execute initializes all of the commands, then runs the main cobra command
// execution function.
// The application version is passed into the execution from the main package.
// This returns an error instance reflecting the failure state of any sub-command.
func Execute(version string) error {
	// Set the version.
	binVersion = version

	// Instantiate a root cancellation context.
	initRootContext()
	defer rootCtx.Cancel()

	rootCmd := &cobra.Command{
		Use:          "co2exporter",
		Short:        "co2exporter serves MH-Z19C CO2 readings as Prometheus metrics",
		SilenceUsage: true,
	}

	// Global args.
	rootCmd.PersistentFlags().BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose mode")

	rootCmd.AddCommand(NewServerCommand())
	rootCmd.AddCommand(NewProbeCommand())
	rootCmd.AddCommand(clientcmd.NewClientCommand())
	rootCmd.AddCommand(NewVersionCommand())
	return rootCmd.ExecuteContext(rootCtx.Context)
}
