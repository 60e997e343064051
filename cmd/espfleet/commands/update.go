package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/espfleet/espfleet/pkg/artifact"
	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/engine"
	"github.com/espfleet/espfleet/pkg/esphome"
	"github.com/espfleet/espfleet/pkg/ota"
	"github.com/espfleet/espfleet/pkg/progress"
	"github.com/espfleet/espfleet/pkg/runtime"
	"github.com/espfleet/espfleet/pkg/stores"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

// containerBuildRoot is where the ESPHome container writes build
// output. It is container-internal and not configurable from the host.
const containerBuildRoot = "/data/build"

func newUpdateCommand() *cobra.Command {
	var (
		dryRun     bool
		startFrom  string
		maxDevices int
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run a fleet update",
		Long: `Run one update pass over the fleet.

This command:
  - Verifies the docker runtime and the ESPHome container
  - Discovers devices from the configuration directory
  - Filters them by the configured include/exclude patterns
  - Compiles, locates and uploads firmware for each eligible device
  - Flushes the progress file after every device, so an interrupted
    run resumes exactly where it stopped`,
		Example: `  # Normal run with the add-on options file
  espfleet update

  # See what would happen without touching any device
  espfleet update --dry-run

  # Resume manually from a specific device
  espfleet update --start-from garage-door`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(optionsPath)
			if err != nil {
				return err
			}
			if dryRun {
				opts.DryRun = true
			}
			if startFrom != "" {
				opts.StartFromDevice = startFrom
			}
			if maxDevices > 0 {
				opts.MaxDevicesPerRun = maxDevices
			}
			if verbosity != "" {
				opts.Verbosity = verbosity
			}

			logger, closeLog := telemetry.NewLogger(opts.LogFile, telemetry.Verbosity(opts.Verbosity))
			defer closeLog()

			return runUpdate(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be updated without compiling or uploading")
	cmd.Flags().StringVar(&startFrom, "start-from", "", "skip devices preceding this one in discovery order")
	cmd.Flags().IntVar(&maxDevices, "max-devices", 0, "cap the number of devices processed this run")

	return cmd
}

func runUpdate(ctx context.Context, opts config.Options, logger zerolog.Logger) error {
	docker := runtime.NewDocker(opts.Container, logger)
	tool := esphome.NewClient(docker, opts.ConfigDir, logger)

	metrics := telemetry.NewMetrics(opts.MetricsEnabled)
	metrics.Serve(opts.MetricsListenAddress, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		metrics.Shutdown(shutdownCtx)
	}()

	history := openHistory(ctx, opts, logger)
	if history.store != nil {
		defer history.store.Close()
	}

	eng := engine.New(opts, engine.Deps{
		Devices:   discovery.NewDiscoverer(opts.ConfigDir, logger),
		Artifacts: artifact.NewResolver(docker, containerBuildRoot, opts.ConfigDir, logger),
		Tool:      tool,
		Prober:    ota.NewPingProber(2*time.Second, logger),
		Preflight: engine.NewDockerPreflight(docker, opts.ConfigDir, logger),
		Progress:  progress.NewStore(opts.ProgressFile, logger),
		State:     progress.NewStateStore(opts.StateFile, logger),
		Metrics:   metrics,
		History:   history.recorder,
	}, logger)

	_, err := eng.Run(ctx)
	return err
}

// historyHandle pairs the concrete store (for Close) with the recorder
// the engine sees, which stays nil when history is disabled or broken.
type historyHandle struct {
	store    *stores.HistoryStore
	recorder engine.HistoryRecorder
}

// openHistory opens the run history database. Any failure disables
// history with a warning; it never blocks an update run.
func openHistory(ctx context.Context, opts config.Options, logger zerolog.Logger) historyHandle {
	if opts.HistoryDB == "" {
		return historyHandle{}
	}

	store, err := stores.NewHistoryStore(stores.Config{Path: opts.HistoryDB})
	if err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
		return historyHandle{}
	}
	if err := store.Init(ctx); err != nil {
		logger.Warn().Err(err).Msg("run history disabled")
		return historyHandle{}
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		logger.Warn().Err(err).Msg("run history disabled")
		return historyHandle{}
	}
	return historyHandle{store: store, recorder: store}
}
