package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	optionsPath string
	verbosity   string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "espfleet",
		Short: "espfleet - selective OTA updates for ESPHome device fleets",
		Long: `espfleet compiles and uploads firmware for a fleet of ESPHome devices,
one device at a time, resuming where the previous run stopped.

Features:
  - Discovers devices from the ESPHome configuration directory
  - Include/exclude filtering by device and config file name
  - Version gating against dashboard-reported deployed versions
  - Resumable progress file, flushed after every device
  - Offline detection with skip-and-continue
  - Cooperative cancellation that never loses progress`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&optionsPath, "options", "o", "/data/options.json", "options file path")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "", "console verbosity (quiet, normal, verbose, debug)")

	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newDoctorCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
