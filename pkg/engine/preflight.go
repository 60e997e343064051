package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/espfleet/espfleet/pkg/runtime"
)

// DockerPreflight verifies that the container runtime and the device
// configuration directory are usable. Every check failure is fatal: an
// update run that starts against a broken environment produces failed
// markers for devices that were never the problem.
type DockerPreflight struct {
	docker    *runtime.Docker
	configDir string
	logger    zerolog.Logger
}

// NewDockerPreflight creates the production environment checker.
func NewDockerPreflight(docker *runtime.Docker, configDir string, logger zerolog.Logger) *DockerPreflight {
	return &DockerPreflight{
		docker:    docker,
		configDir: configDir,
		logger:    logger.With().Str("component", "preflight").Logger(),
	}
}

// Check runs the precondition checks in dependency order and returns a
// precondition error on the first failure.
func (p *DockerPreflight) Check(ctx context.Context) error {
	if sock := runtime.SocketPath(); sock == "" {
		p.logger.Warn().Msg("no docker socket found; protection mode may be enabled")
	} else {
		p.logger.Debug().Str("socket", sock).Msg("docker socket present")
	}

	version, err := runtime.CLIVersion(ctx)
	if err != nil {
		return NewPreconditionError("docker CLI unavailable", err)
	}
	p.logger.Debug().Str("version", version).Msg("docker CLI available")

	if err := runtime.DaemonReachable(ctx); err != nil {
		return NewPreconditionError("docker daemon not reachable", err)
	}

	if !p.docker.ContainerExists(ctx) {
		return NewPreconditionError(
			fmt.Sprintf("container %s not found", p.docker.Container()), nil)
	}

	if err := p.checkConfigDir(); err != nil {
		return err
	}

	return nil
}

func (p *DockerPreflight) checkConfigDir() error {
	entries, err := os.ReadDir(p.configDir)
	if err != nil {
		return NewPreconditionError(
			fmt.Sprintf("config directory %s not readable", p.configDir), err)
	}

	// Only *.yaml counts: discovery considers nothing else, so a
	// looser check here would pass preflight and then find zero
	// devices.
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
		return NewPreconditionError(
			fmt.Sprintf("no device configurations in %s", p.configDir), nil)
	}

	p.logger.Debug().Int("configs", count).Msg("config directory populated")
	return nil
}
