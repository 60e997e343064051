package ota

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// PingProber probes reachability with the system ping binary: one echo
// request, short timeout. It tries both the -w and -W deadline flags
// because busybox and iputils disagree on which one means what.
type PingProber struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewPingProber creates a prober with the given per-attempt timeout.
func NewPingProber(timeout time.Duration, logger zerolog.Logger) *PingProber {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PingProber{
		timeout: timeout,
		logger:  logger.With().Str("component", "probe").Logger(),
	}
}

// Reachable reports whether host answers a single echo. When the ping
// binary is missing or the probe itself times out, the host is treated
// as reachable: an unavailable probe must never block an update.
func (p *PingProber) Reachable(ctx context.Context, host string) bool {
	for _, deadline := range [][]string{{"-c", "1", "-w", "1"}, {"-c", "1", "-W", "1"}} {
		attempt, cancel := context.WithTimeout(ctx, p.timeout)
		args := append(deadline, host)
		err := exec.CommandContext(attempt, "ping", args...).Run()
		cancel()

		if err == nil {
			return true
		}
		if errors.Is(err, exec.ErrNotFound) {
			p.logger.Debug().Str("host", host).Msg("ping binary unavailable, assuming reachable")
			return true
		}
		if attempt.Err() != nil {
			p.logger.Debug().Str("host", host).Msg("probe timed out, assuming reachable")
			return true
		}
	}
	return false
}
