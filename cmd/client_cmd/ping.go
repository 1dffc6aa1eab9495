// clientcmd package wraps /ping endpoint handling in a client sub-command.
package clientcmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// NewClientPingCommand creates a new ping sub-command, invoking /ping on a
// running exporter.
func NewClientPingCommand() *cobra.Command {
	clientPingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Invokes /ping endpoint on a running exporter",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the existing HTTP client instance to invoke the ping endpoint.
			resBody, err := clientContext.Invoke(cmd.Context(), "ping", http.MethodGet, nil)
			if err != nil {
				return fmt.Errorf("/ping failed: %v", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "/ping response: %s\n", resBody)
			return nil
		},
	}

	return clientPingCmd
}
