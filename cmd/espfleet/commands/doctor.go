package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/esphome"
	"github.com/espfleet/espfleet/pkg/runtime"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

func newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the update environment",
		Long: `Check every precondition an update run depends on and report each
one individually: the docker socket, the docker CLI and daemon, the
ESPHome container, the esphome binary inside it, and the device
configuration directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(optionsPath)
			if err != nil {
				return err
			}
			logger, closeLog := telemetry.NewLogger("", telemetry.VerbosityQuiet)
			defer closeLog()

			return runDoctor(cmd.Context(), opts, logger)
		},
	}
	return cmd
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func runDoctor(ctx context.Context, opts config.Options, logger zerolog.Logger) error {
	docker := runtime.NewDocker(opts.Container, logger)
	tool := esphome.NewClient(docker, opts.ConfigDir, logger)

	checks := []check{
		{"docker socket", func(_ context.Context) (string, error) {
			sock := runtime.SocketPath()
			if sock == "" {
				return "", fmt.Errorf("no socket at /run/docker.sock or /var/run/docker.sock (protection mode?)")
			}
			return sock, nil
		}},
		{"docker CLI", func(ctx context.Context) (string, error) {
			return runtime.CLIVersion(ctx)
		}},
		{"docker daemon", func(ctx context.Context) (string, error) {
			if err := runtime.DaemonReachable(ctx); err != nil {
				return "", err
			}
			return "reachable", nil
		}},
		{"container " + opts.Container, func(ctx context.Context) (string, error) {
			if !docker.ContainerExists(ctx) {
				return "", fmt.Errorf("not found")
			}
			return "present", nil
		}},
		{"esphome binary", func(ctx context.Context) (string, error) {
			version := tool.Version(ctx)
			if version == esphome.VersionUnknown {
				return "", fmt.Errorf("version not determinable")
			}
			return version, nil
		}},
		{"config directory", func(_ context.Context) (string, error) {
			return describeConfigDir(opts.ConfigDir)
		}},
		{"progress file", func(_ context.Context) (string, error) {
			return describeFile(opts.ProgressFile)
		}},
	}

	failures := 0
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		detail, err := c.run(checkCtx)
		cancel()

		if err != nil {
			failures++
			fmt.Printf("FAIL  %-30s %v\n", c.name, err)
			continue
		}
		fmt.Printf("ok    %-30s %s\n", c.name, detail)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d checks failed", failures, len(checks))
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func describeConfigDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	// Same rule as discovery: only *.yaml documents are devices.
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".yaml") {
			count++
		}
	}
	if count == 0 {
		return "", fmt.Errorf("no device configurations in %s", dir)
	}
	return fmt.Sprintf("%d device configurations", count), nil
}

func describeFile(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "absent (fresh start)", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bytes", info.Size()), nil
}
