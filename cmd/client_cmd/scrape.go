package clientcmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewClientScrapeCommand creates a scrape sub-command which triggers a fresh
// measurement through /metrics and prints the gauge value.
func NewClientScrapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes /metrics on a running exporter and prints the CO2 concentration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ppm, err := clientContext.Scrape(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "CO2: %.0f ppm\n", ppm)
			return nil
		},
	}
}
