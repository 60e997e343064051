package engine

import (
	"context"
	"time"

	"github.com/espfleet/espfleet/pkg/artifact"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/runtime"
	"github.com/espfleet/espfleet/pkg/stores"
)

// DeviceSource enumerates the devices eligible for an update run.
// The production implementation scans the configuration directory;
// tests substitute a fixed list.
type DeviceSource interface {
	Discover() ([]discovery.Device, error)
}

// ArtifactLocator finds the firmware binary produced by a compile.
type ArtifactLocator interface {
	Locate(ctx context.Context, stem string) (artifact.Artifact, error)
}

// ToolRunner is the slice of the build tool the engine drives.
type ToolRunner interface {
	Compile(ctx context.Context, configFile string, timeout time.Duration, sink runtime.LineSink) error
	Upload(ctx context.Context, configFile, target string, timeout time.Duration, sink runtime.LineSink) error
	CopyArtifact(ctx context.Context, src, dst string) error
	Version(ctx context.Context) string
}

// EnvironmentChecker verifies the run's preconditions before any
// device is touched.
type EnvironmentChecker interface {
	Check(ctx context.Context) error
}

// HistoryRecorder persists run and device outcome history. The engine
// treats recording failures as warnings: history is diagnostic, never
// load-bearing.
type HistoryRecorder interface {
	BeginRun(ctx context.Context, run *stores.Run) error
	FinishRun(ctx context.Context, run *stores.Run) error
	RecordDevice(ctx context.Context, outcome *stores.DeviceOutcome) error
}
