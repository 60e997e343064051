package engine

import (
	"github.com/espfleet/espfleet/pkg/esphome"
	"github.com/espfleet/espfleet/pkg/progress"
	"github.com/espfleet/espfleet/pkg/telemetry"
)

// housekeep applies the log and progress clearing rules before devices
// are touched: the on-start clears, the one-shot "now" triggers, and
// the tool version change rule. Trigger consumption is persisted so a
// "now" trigger fires once per activation even across restarts.
func (e *Engine) housekeep(toolVersion string) {
	st := e.deps.State.Load()
	changed := false

	versionChanged := false
	previousVersion := st.LastVersion
	if toolVersion != esphome.VersionUnknown && toolVersion != "" {
		versionChanged = previousVersion != "" && previousVersion != toolVersion
		if previousVersion != toolVersion {
			st.LastVersion = toolVersion
			changed = true
		}
	}

	clearLog := e.opts.ClearLogOnStart
	if e.opts.AlwaysClearLogOnVersionChange && versionChanged {
		e.logger.Info().
			Str("from", previousVersion).
			Str("to", toolVersion).
			Msg("tool version changed, clearing log")
		clearLog = true
	}
	fire, ch := progress.ConsumeTrigger(e.opts.ClearLogNow, &st.ClearLogConsumed)
	clearLog = clearLog || fire
	changed = changed || ch
	if clearLog {
		if err := telemetry.TruncateLog(e.opts.LogFile); err != nil {
			e.logger.Warn().Err(err).Msg("failed to clear log file")
		} else {
			e.logger.Info().Msg("log file cleared")
		}
	}

	clearProgress := e.opts.ClearProgressOnStart
	fire, ch = progress.ConsumeTrigger(e.opts.ClearProgressNow, &st.ClearProgressConsumed)
	clearProgress = clearProgress || fire
	changed = changed || ch
	if clearProgress {
		if err := e.deps.Progress.Clear(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to clear progress file")
		} else {
			e.logger.Info().Msg("progress file cleared")
		}
	}

	if changed {
		if err := e.deps.State.Save(st); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist housekeeping state")
		}
	}
}
