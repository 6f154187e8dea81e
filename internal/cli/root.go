// Package cli implements the ecoctl command-line client using Cobra. Every
// subcommand talks to a running eco-monitor daemon over D-Bus.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	busFlag     string
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ecoctl",
	Short: "Query and watch the eco-monitor daemon",
	Long: `ecoctl talks to the eco-monitor daemon over D-Bus.

It runs device queries (battery, thermal, memory, storage, connectivity),
prints the eco score, follows event channels and reads the event journal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&busFlag, "bus", "system", `bus the daemon is on ("system" or "session")`)
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 5*time.Second, "timeout for a single request")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
