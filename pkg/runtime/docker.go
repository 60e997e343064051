package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Docker runs commands inside a named container via the docker CLI.
type Docker struct {
	container string
	logger    zerolog.Logger
}

// NewDocker creates a runtime client for the named container.
func NewDocker(container string, logger zerolog.Logger) *Docker {
	return &Docker{
		container: container,
		logger:    logger.With().Str("component", "runtime").Str("container", container).Logger(),
	}
}

// Container returns the configured container name.
func (d *Docker) Container() string {
	return d.container
}

// Exec runs a command inside the container, streaming output lines to
// sink (which may be nil) and keeping a diagnostic tail.
func (d *Docker) Exec(ctx context.Context, timeout time.Duration, sink LineSink, args ...string) (Result, error) {
	full := append([]string{"exec", d.container}, args...)
	d.logger.Debug().Strs("args", args).Msg("docker exec")
	return run(ctx, timeout, sink, "docker", full...)
}

// CopyOut copies a file from the container to the host.
func (d *Docker) CopyOut(ctx context.Context, src, dst string) error {
	res, err := run(ctx, time.Minute, nil, "docker", "cp", d.container+":"+src, dst)
	if err != nil {
		return fmt.Errorf("docker cp failed to start: %w", err)
	}
	if res.Code != 0 {
		return fmt.Errorf("docker cp %s exited %d: %s", src, res.Code, lastLine(res.Output))
	}
	return nil
}

// Glob enumerates paths inside the container matching a shell glob, in
// shell sort order. No matches is not an error; the returned slice is
// empty. Implements the artifact resolver's Lister.
func (d *Docker) Glob(ctx context.Context, pattern string) ([]string, error) {
	script := fmt.Sprintf("ls -1d %s 2>/dev/null", pattern)
	res, err := d.Exec(ctx, 30*time.Second, nil, "sh", "-lc", script)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if res.Cancelled {
		return nil, ctx.Err()
	}
	if res.Code != 0 {
		return nil, nil
	}
	var paths []string
	for _, line := range strings.Split(res.Output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// ContainerExists reports whether the configured container is known to
// the runtime.
func (d *Docker) ContainerExists(ctx context.Context) bool {
	res, err := run(ctx, 5*time.Second, nil, "docker", "inspect", d.container)
	return err == nil && res.Code == 0
}

// CLIVersion returns the docker CLI version banner, or an error when
// the CLI is unavailable.
func CLIVersion(ctx context.Context) (string, error) {
	res, err := run(ctx, 5*time.Second, nil, "docker", "--version")
	if err != nil {
		return "", fmt.Errorf("docker CLI not available: %w", err)
	}
	if res.Code != 0 {
		return "", fmt.Errorf("docker CLI exited %d", res.Code)
	}
	return strings.TrimSpace(res.Output), nil
}

// DaemonReachable reports whether the docker daemon answers.
func DaemonReachable(ctx context.Context) error {
	res, err := run(ctx, 5*time.Second, nil, "docker", "ps", "-q")
	if err != nil {
		return fmt.Errorf("docker CLI not available: %w", err)
	}
	if res.Code != 0 {
		return fmt.Errorf("docker daemon not reachable: %s", lastLine(res.Output))
	}
	return nil
}

// SocketPath returns the first docker socket path that exists, or empty
// when none does. Its absence usually means the supervisor's protection
// mode is blocking runtime access.
func SocketPath() string {
	for _, p := range []string{"/run/docker.sock", "/var/run/docker.sock"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
