// Command paycorectl is the operator tool for a paycore deployment: it mints API tokens,
// sends signed test webhooks and replays unsynced order projections.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "paycorectl",
		Short:   "Operate and exercise the paycore payment engine",
		Version: Version,
	}
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(replayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
