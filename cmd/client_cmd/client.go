// cmd package provides a client sub-command for interacting directly with
// a running exporter.
package clientcmd

import (
	"fmt"

	"co2exporter/v0/internal/client"
	"co2exporter/v0/internal/config"
	"co2exporter/v0/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Shared client variables.
var (
	clientContext *client.ClientHttpContext
	clientLogger  *zap.Logger
)

// Client flags
var (
	// Running exporter instance
	serverHost *string
	serverPort *uint

	// Optional TLS configurations
	useTLS                *bool
	clientCertificatePath *string
	clientKeyPath         *string
	clientTrustedCaPath   *string
)

// setupClient configures a client instance, optionally with TLS, for which
// to be used within client sub-commands.
// This returns an error instance reflecting the state of failure for
// configuring a client instance.
func setupClient(cmd *cobra.Command, args []string) error {
	var err error = nil
	if clientLogger, err = logger.New(config.Verbose); err != nil {
		return err
	}
	svrEndpoint := fmt.Sprintf("%s:%d", *serverHost, *serverPort)

	// Check client construction with TLS.
	if *useTLS || *clientCertificatePath != "" || *clientTrustedCaPath != "" {
		clientLogger.Debug("constructing client instance with TLS")
		clientContext, err = client.NewClientContextWithTLS(client.ClientHttpTLSOptions{
			ClientHttpOptions: client.ClientHttpOptions{
				ServerEndpoint: svrEndpoint,
				Logger:         clientLogger,
			},

			ClientCertificatePath: *clientCertificatePath,
			ClientKeyPath:         *clientKeyPath,
			TrustedCaPath:         *clientTrustedCaPath,
		})

	} else {
		clientLogger.Debug("constructing insecure client instance")
		clientContext, err = client.NewClientContext(
			client.ClientHttpOptions{
				ServerEndpoint: svrEndpoint,
				Logger:         clientLogger,
			},
		)
	}
	if err != nil {
		return fmt.Errorf("failed to create client context: %v", err)
	}

	return nil
}

// NewClientCommand creates a client sub-command, returning a pointer to
// the command instance. Requests are bound to the context the command is
// executed with.
func NewClientCommand() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Client interface with a running co2exporter instance",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup a client instance to be shared with the client sub-commands.
			if err := setupClient(cmd, args); err != nil {
				return err
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			clientLogger.Sync()
		},
	}

	// Server flags.
	serverHost = clientCmd.PersistentFlags().String("server", "localhost", "Host endpoint for a running co2exporter")
	serverPort = clientCmd.PersistentFlags().Uint("port", 1202, "Listening port on a running co2exporter")

	// Optional TLS flags.
	useTLS = clientCmd.PersistentFlags().Bool("tls", false, "(Optional) Connect over TLS using the system trust store")
	clientCertificatePath = clientCmd.PersistentFlags().String("certificate", "", "(Optional) Client TLS Certificate file path")
	clientKeyPath = clientCmd.PersistentFlags().String("key", "", "(Optional) Client TLS Key file path")
	clientTrustedCaPath = clientCmd.PersistentFlags().String("trustedCa", "", "(Optional) Client trusted CA bundle file path")

	// Add client sub-commands.
	clientCmd.AddCommand(NewClientPingCommand())
	clientCmd.AddCommand(NewClientScrapeCommand())

	return clientCmd
}
