package esphome

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/espfleet/espfleet/pkg/runtime"
)

// Runtime is the slice of the container runtime the client needs.
type Runtime interface {
	Exec(ctx context.Context, timeout time.Duration, sink runtime.LineSink, args ...string) (runtime.Result, error)
	CopyOut(ctx context.Context, src, dst string) error
}

// ToolError is a failed compile or upload: the exit code, the coarse
// failure classification, and the output tail for diagnostics.
type ToolError struct {
	Op   string
	Code int
	Kind runtime.FailureKind
	Tail string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("esphome %s failed (%s, exit %d)", e.Op, e.Kind, e.Code)
}

// VersionUnknown is returned when the tool's version cannot be
// determined. It is a value, not an error: an undeterminable version is
// an expected condition.
const VersionUnknown = "unknown"

var versionRE = regexp.MustCompile(`(?i)ESPHome\s+(?:version\s+)?([0-9][^\s]*)`)

// uploadSuccessIndicators mark an OTA that succeeded regardless of the
// CLI's exit status.
var uploadSuccessIndicators = []string{
	"OTA successful",
	"Successfully uploaded program",
}

// Client invokes the ESPHome CLI inside the build container.
type Client struct {
	rt        Runtime
	configDir string
	logger    zerolog.Logger
}

// NewClient creates a client. configDir is the in-container path of the
// device configuration directory.
func NewClient(rt Runtime, configDir string, logger zerolog.Logger) *Client {
	return &Client{
		rt:        rt,
		configDir: configDir,
		logger:    logger.With().Str("component", "esphome").Logger(),
	}
}

// Compile builds the firmware for one configuration file. Output lines
// stream to sink as they appear. The returned error is nil only when
// the compiler exited zero; cancellation surfaces as ctx.Err().
func (c *Client) Compile(ctx context.Context, configFile string, timeout time.Duration, sink runtime.LineSink) error {
	res, err := c.rt.Exec(ctx, timeout, sink, "esphome", "compile", c.configPath(configFile))
	if err != nil {
		return fmt.Errorf("failed to invoke compiler: %w", err)
	}
	switch {
	case res.Cancelled:
		return ctx.Err()
	case res.Code == 0:
		return nil
	}
	kind := runtime.Classify(res.Output)
	if res.TimedOut {
		kind = runtime.FailureTimeout
	}
	return &ToolError{Op: "compile", Code: res.Code, Kind: kind, Tail: res.Output}
}

// Upload delivers the compiled firmware to the target over the air.
func (c *Client) Upload(ctx context.Context, configFile, target string, timeout time.Duration, sink runtime.LineSink) error {
	res, err := c.rt.Exec(ctx, timeout, sink,
		"esphome", "upload", c.configPath(configFile), "--device", target)
	if err != nil {
		return fmt.Errorf("failed to invoke uploader: %w", err)
	}
	switch {
	case res.Cancelled:
		return ctx.Err()
	case uploadSucceeded(res):
		return nil
	}
	kind := runtime.Classify(res.Output)
	if res.TimedOut {
		kind = runtime.FailureTimeout
	}
	return &ToolError{Op: "upload", Code: res.Code, Kind: kind, Tail: res.Output}
}

// CopyArtifact copies a firmware binary out of the container.
func (c *Client) CopyArtifact(ctx context.Context, src, dst string) error {
	return c.rt.CopyOut(ctx, src, dst)
}

// Version reports the tool version inside the container, VersionUnknown
// when it cannot be determined.
func (c *Client) Version(ctx context.Context) string {
	res, err := c.rt.Exec(ctx, 30*time.Second, nil, "esphome", "version")
	if err != nil || res.Code != 0 {
		return VersionUnknown
	}
	if m := versionRE.FindStringSubmatch(res.Output); m != nil {
		return m[1]
	}
	return VersionUnknown
}

func (c *Client) configPath(configFile string) string {
	return path.Join(c.configDir, configFile)
}

func uploadSucceeded(res runtime.Result) bool {
	if res.Code == 0 {
		return true
	}
	for _, s := range uploadSuccessIndicators {
		if strings.Contains(res.Output, s) {
			return true
		}
	}
	return false
}
