package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/filter"
	"github.com/espfleet/espfleet/pkg/ota"
	"github.com/espfleet/espfleet/pkg/progress"
	"github.com/espfleet/espfleet/pkg/stores"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

// Deps bundles the collaborators an Engine needs. Progress, State and
// Devices are required; History may be nil when run history is
// disabled, and Metrics may be the disabled no-op instance.
type Deps struct {
	Devices   DeviceSource
	Artifacts ArtifactLocator
	Tool      ToolRunner
	Prober    ota.Prober
	Preflight EnvironmentChecker
	Progress  *progress.Store
	State     *progress.StateStore
	Metrics   *telemetry.Metrics
	History   HistoryRecorder
}

// Summary is the outcome of a completed (or interrupted) run. The
// per-set slices are the accumulated progress sets after the run, so a
// resumed run reports the fleet's full standing, not just this run's
// increment.
type Summary struct {
	RunID     string
	Total     int
	Eligible  int
	Done      []string
	Failed    []string
	Skipped   []string
	Duration  time.Duration
	DryRun    bool
	Completed bool
}

// Engine executes update runs.
type Engine struct {
	opts   config.Options
	deps   Deps
	logger zerolog.Logger
}

// New creates an engine from the given options and collaborators.
func New(opts config.Options, deps Deps, logger zerolog.Logger) *Engine {
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics(false)
	}
	return &Engine{
		opts:   opts,
		deps:   deps,
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// Run performs one update run. It returns the fleet's accumulated
// standing alongside any terminal error: a precondition failure, an
// abort under a stop-on-error policy, or an interruption. Per-device
// failures that the policy tolerates do not produce an error.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	summary := &Summary{
		RunID:  uuid.New().String(),
		DryRun: e.opts.DryRun,
	}

	if err := e.deps.Preflight.Check(ctx); err != nil {
		return summary, err
	}

	toolVersion := e.deps.Tool.Version(ctx)
	e.logger.Info().
		Str("run_id", summary.RunID).
		Str("esphome_version", toolVersion).
		Bool("dry_run", e.opts.DryRun).
		Msg("update run starting")

	e.housekeep(toolVersion)

	prog := e.deps.Progress.Load()
	done, failed, skipped := prog.Counts()
	if done+failed+skipped > 0 {
		e.logger.Info().
			Int("done", done).
			Int("failed", failed).
			Int("skipped", skipped).
			Msg("resuming from previous progress")
	}

	devices, err := e.deps.Devices.Discover()
	if err != nil {
		return summary, NewPreconditionError("device discovery failed", err)
	}
	if len(devices) == 0 {
		return summary, NewPreconditionError("no device configurations found", nil)
	}
	summary.Total = len(devices)

	eligible := e.plan(devices, prog)
	summary.Eligible = len(eligible)
	e.logger.Info().
		Int("discovered", len(devices)).
		Int("eligible", len(eligible)).
		Msg("device selection complete")

	e.beginHistory(ctx, summary, toolVersion, started)

	runErr := e.processAll(ctx, eligible, prog, summary.RunID)

	// The reported sets are the merged progress record, so counts
	// accumulate across resumed runs the way the progress file does.
	summary.Done = append([]string(nil), prog.Done...)
	summary.Failed = append([]string(nil), prog.Failed...)
	summary.Skipped = append([]string(nil), prog.Skipped...)

	summary.Duration = time.Since(started)
	summary.Completed = runErr == nil

	status := stores.RunStatusCompleted
	switch {
	case IsInterrupted(runErr):
		status = stores.RunStatusInterrupted
	case runErr != nil:
		status = stores.RunStatusAborted
	}

	e.finishRun(ctx, summary, status)
	e.logSummary(summary, status)
	e.deps.Metrics.RunCompleted(string(status), summary.Duration)

	return summary, runErr
}

// plan applies the eligibility filter plus the run-level start-from and
// cap rules. Devices already carrying a terminal marker keep it;
// devices excluded by a pattern or the version gate are recorded as
// skipped, so the progress sets and the final summary account for every
// discovered device.
func (e *Engine) plan(devices []discovery.Device, prog *progress.Progress) []discovery.Device {
	devices = e.applyStartFrom(devices)

	recorded := false
	eligible := make([]discovery.Device, 0, len(devices))
	for _, dev := range devices {
		if outcome, ok := prog.Lookup(dev.Name); ok {
			e.logger.Debug().
				Str("device", dev.Name).
				Str("outcome", string(outcome)).
				Msg("already decided in a previous run")
			continue
		}
		decision := filter.ShouldProcess(dev, e.opts, prog)
		if !decision.Include {
			e.logger.Info().
				Str("device", dev.Name).
				Str("reason", decision.Reason).
				Msg("device filtered out, marking skipped")
			prog.Record(dev.Name, progress.OutcomeSkipped)
			recorded = true
			continue
		}
		eligible = append(eligible, dev)
	}
	if recorded {
		if err := e.deps.Progress.Save(prog); err != nil {
			e.logger.Warn().Err(err).Msg("progress flush failed, continuing")
		}
	}

	if limit := e.opts.MaxDevicesPerRun; limit > 0 && len(eligible) > limit {
		e.logger.Info().
			Int("cap", limit).
			Int("deferred", len(eligible)-limit).
			Msg("device cap reached, deferring the rest to the next run")
		eligible = eligible[:limit]
	}

	return eligible
}

// applyStartFrom drops devices preceding the named starting point in
// discovery order. An unknown name keeps the full list; quietly
// processing nothing would look like a successful empty run.
func (e *Engine) applyStartFrom(devices []discovery.Device) []discovery.Device {
	name := strings.TrimSpace(e.opts.StartFromDevice)
	if name == "" {
		return devices
	}
	for i, dev := range devices {
		if strings.EqualFold(dev.Name, name) {
			if i > 0 {
				e.logger.Info().
					Str("start_from", dev.Name).
					Int("skipped_before", i).
					Msg("starting from requested device")
			}
			return devices[i:]
		}
	}
	e.logger.Warn().
		Str("start_from", name).
		Msg("start_from_device not found, processing the full list")
	return devices
}

// processAll runs the per-device state machine over the eligible list,
// flushing progress after every device and pausing between devices.
func (e *Engine) processAll(ctx context.Context, devices []discovery.Device, prog *progress.Progress, runID string) error {
	for i, dev := range devices {
		if ctx.Err() != nil {
			return e.interrupt(ctx, prog)
		}

		e.logger.Info().
			Str("device", dev.Name).
			Int("position", i+1).
			Int("of", len(devices)).
			Msg("processing device")

		result, err := e.processDevice(ctx, dev)
		if result != nil {
			prog.Record(dev.Name, result.Outcome)
			e.deps.Metrics.DeviceProcessed(string(result.Outcome))
			e.recordHistory(ctx, runID, dev.Name, result)
		}
		if saveErr := e.deps.Progress.Save(prog); saveErr != nil {
			e.logger.Warn().Err(saveErr).Msg("progress flush failed, continuing")
		}
		if err != nil {
			// Interruption or a stop-on-error abort. Progress is
			// already flushed, so the next run resumes past this
			// device's marker.
			return err
		}

		if i < len(devices)-1 {
			if err := e.pause(ctx); err != nil {
				return e.interrupt(ctx, prog)
			}
		}
	}
	return nil
}

// interrupt flushes progress and returns the interruption error.
func (e *Engine) interrupt(ctx context.Context, prog *progress.Progress) error {
	if err := e.deps.Progress.Save(prog); err != nil {
		e.logger.Warn().Err(err).Msg("progress flush on interruption failed")
	}
	e.logger.Warn().Msg("run interrupted, progress preserved")
	return NewInterruptedError(ctx.Err())
}

// pause waits the configured inter-device delay, polling for
// cancellation once a second so an interruption never waits out the
// full delay.
func (e *Engine) pause(ctx context.Context) error {
	if e.opts.DelayIsZero() {
		return nil
	}
	e.logger.Debug().Int("seconds", e.opts.DelayBetweenUpdates).Msg("pausing between devices")
	remaining := time.Duration(e.opts.DelayBetweenUpdates) * time.Second
	for remaining > 0 {
		step := time.Second
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
		remaining -= step
	}
	return nil
}

func (e *Engine) beginHistory(ctx context.Context, summary *Summary, toolVersion string, started time.Time) {
	if e.deps.History == nil {
		return
	}
	run := &stores.Run{
		ID:          summary.RunID,
		Status:      stores.RunStatusRunning,
		ToolVersion: toolVersion,
		DryRun:      e.opts.DryRun,
		StartedAt:   started,
	}
	if err := e.deps.History.BeginRun(ctx, run); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record run start")
	}
}

func (e *Engine) recordHistory(ctx context.Context, runID, device string, result *deviceResult) {
	if e.deps.History == nil {
		return
	}
	outcome := &stores.DeviceOutcome{
		RunID:      runID,
		Device:     device,
		Outcome:    string(result.Outcome),
		Reason:     result.Reason,
		Target:     result.Target,
		DurationMS: result.Duration.Milliseconds(),
	}
	if err := e.deps.History.RecordDevice(ctx, outcome); err != nil {
		e.logger.Warn().Err(err).Str("device", device).Msg("failed to record device outcome")
	}
}

// finishRun records the terminal run status. The write is detached from
// the run context so an interrupted run still gets its final row.
func (e *Engine) finishRun(ctx context.Context, summary *Summary, status stores.RunStatus) {
	if e.deps.History == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	run := &stores.Run{
		ID:      summary.RunID,
		Status:  status,
		Done:    len(summary.Done),
		Failed:  len(summary.Failed),
		Skipped: len(summary.Skipped),
	}
	if err := e.deps.History.FinishRun(ctx, run); err != nil {
		e.logger.Warn().Err(err).Msg("failed to record run completion")
	}
}

func (e *Engine) logSummary(summary *Summary, status stores.RunStatus) {
	event := e.logger.Info().
		Str("run_id", summary.RunID).
		Str("status", string(status)).
		Int("discovered", summary.Total).
		Int("eligible", summary.Eligible).
		Int("done", len(summary.Done)).
		Int("failed", len(summary.Failed)).
		Int("skipped", len(summary.Skipped)).
		Dur("duration", summary.Duration)
	if len(summary.Failed) > 0 {
		event = event.Strs("failed_devices", summary.Failed)
	}
	event.Msg("update run finished")
}
