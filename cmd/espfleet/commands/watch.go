package commands

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration directory for changes",
		Long: `Watch the device configuration directory and report every change to
a device configuration file. Useful for confirming which devices the
next update run will consider after editing configurations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(optionsPath)
			if err != nil {
				return err
			}
			v := telemetry.VerbosityNormal
			if verbosity != "" {
				v = telemetry.Verbosity(verbosity)
			}
			logger, closeLog := telemetry.NewLogger("", v)
			defer closeLog()

			return runWatch(cmd.Context(), opts.ConfigDir, logger)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, configDir string, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(configDir); err != nil {
		return err
	}
	logger.Info().Str("dir", configDir).Msg("watching for configuration changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDeviceConfig(event.Name) {
				continue
			}
			logger.Info().
				Str("file", filepath.Base(event.Name)).
				Str("op", event.Op.String()).
				Msg("device configuration changed; run update to apply")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// isDeviceConfig applies the same rule as discovery: only *.yaml
// documents are devices.
func isDeviceConfig(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".yaml")
}
