package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/progress"
	"github.com/espfleet/espfleet/pkg/stores"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

func newStatusCommand() *cobra.Command {
	var (
		device string
		runs   int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show resume progress and recent run history",
		Long: `Print the progress file's done/failed/skipped sets, which determine
what the next update run will attempt, plus the most recent runs from
the history database when one is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(optionsPath)
			if err != nil {
				return err
			}
			logger, closeLog := telemetry.NewLogger("", telemetry.VerbosityQuiet)
			defer closeLog()

			prog := progress.NewStore(opts.ProgressFile, logger).Load()
			printProgress(prog)

			if opts.HistoryDB == "" {
				return nil
			}
			history := openHistory(cmd.Context(), opts, logger)
			if history.store == nil {
				return nil
			}
			defer history.store.Close()

			if device != "" {
				return printLastSuccess(cmd.Context(), history.store, device)
			}
			return printRecentRuns(cmd.Context(), history.store, runs)
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "show the last successful update for one device")
	cmd.Flags().IntVar(&runs, "runs", 5, "number of recent runs to show")

	return cmd
}

func printProgress(prog *progress.Progress) {
	done, failed, skipped := prog.Counts()
	fmt.Printf("Progress: %d done, %d failed, %d skipped\n", done, failed, skipped)

	printSet := func(label string, set []string) {
		if len(set) == 0 {
			return
		}
		fmt.Printf("\n%s:\n", label)
		for _, name := range set {
			fmt.Printf("  %s\n", name)
		}
	}
	printSet("Done", prog.Done)
	printSet("Failed", prog.Failed)
	printSet("Skipped", prog.Skipped)
}

func printRecentRuns(ctx context.Context, store *stores.HistoryStore, limit int) error {
	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	fmt.Println("\nRecent runs:")
	for _, run := range runs {
		line := fmt.Sprintf("  %s  %-11s  done=%d failed=%d skipped=%d",
			run.StartedAt.Format(time.DateTime), run.Status, run.Done, run.Failed, run.Skipped)
		if run.DryRun {
			line += "  (dry run)"
		}
		fmt.Println(line)
	}
	return nil
}

func printLastSuccess(ctx context.Context, store *stores.HistoryStore, device string) error {
	outcome, err := store.LastSuccess(ctx, device)
	if err != nil {
		return err
	}
	if outcome == nil {
		fmt.Printf("\nNo successful update recorded for %s.\n", device)
		return nil
	}
	fmt.Printf("\nLast successful update for %s: %s (target %s, %.1fs)\n",
		device, outcome.CreatedAt.Format(time.DateTime), outcome.Target,
		float64(outcome.DurationMS)/1000)
	return nil
}
