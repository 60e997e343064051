package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/espfleet/espfleet/pkg/artifact"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/ota"
	"github.com/espfleet/espfleet/pkg/progress"
)

// deviceResult is the terminal decision for one device in one run.
type deviceResult struct {
	Outcome  progress.Outcome
	Reason   string
	Target   string
	Duration time.Duration
}

// processDevice walks one device through compile, artifact lookup,
// target resolution and upload. The returned result is nil only when
// the run was interrupted before the device reached a decision. A
// non-nil error aborts the run: either an interruption or a failure the
// stop-on-error policy does not tolerate.
func (e *Engine) processDevice(ctx context.Context, dev discovery.Device) (*deviceResult, error) {
	started := time.Now()
	log := e.logger.With().Str("device", dev.Name).Logger()

	if e.opts.DryRun {
		target := ota.ResolveTarget(dev, "")
		log.Info().
			Str("target", target.Address).
			Str("target_source", string(target.Source)).
			Msg("dry run, would compile and upload")
		return &deviceResult{
			Outcome:  progress.OutcomeDone,
			Reason:   "dry-run",
			Target:   target.Address,
			Duration: time.Since(started),
		}, nil
	}

	sink := func(line string) {
		log.Debug().Msg(line)
	}

	log.Info().Str("config", dev.ConfigFile).Msg("compiling")
	compileStart := time.Now()
	err := e.deps.Tool.Compile(ctx, dev.ConfigFile, e.compileTimeout(), sink)
	e.deps.Metrics.CompileObserved(time.Since(compileStart))
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewInterruptedError(ctx.Err())
		}
		log.Error().Err(err).Msg("compile failed")
		result := &deviceResult{
			Outcome:  progress.OutcomeFailed,
			Reason:   fmt.Sprintf("compile failed: %v", err),
			Duration: time.Since(started),
		}
		if e.opts.StopOnCompileError {
			return result, NewCompileError("compile failed", err).WithDevice(dev.Name)
		}
		return result, nil
	}

	art, err := e.deps.Artifacts.Locate(ctx, dev.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewInterruptedError(ctx.Err())
		}
		if errors.Is(err, artifact.ErrNotFound) {
			log.Error().Msg("compile succeeded but no firmware binary found")
		} else {
			log.Error().Err(err).Msg("artifact lookup failed")
		}
		result := &deviceResult{
			Outcome:  progress.OutcomeFailed,
			Reason:   fmt.Sprintf("artifact: %v", err),
			Duration: time.Since(started),
		}
		if e.opts.StopOnCompileError {
			return result, NewArtifactError("firmware artifact not found", err).WithDevice(dev.Name)
		}
		return result, nil
	}
	log.Debug().
		Str("path", art.Path).
		Str("build_name", art.BuildName).
		Msg("firmware binary located")

	e.archiveArtifact(ctx, log, dev, art)

	target := ota.ResolveTarget(dev, art.BuildName)
	log.Info().
		Str("target", target.Address).
		Str("target_source", string(target.Source)).
		Msg("upload target resolved")

	if ota.ShouldSkipOffline(ctx, target, e.opts.SkipOffline, e.deps.Prober) {
		log.Warn().Str("target", target.Address).Msg("device offline, skipping")
		return &deviceResult{
			Outcome:  progress.OutcomeSkipped,
			Reason:   "offline",
			Target:   target.Address,
			Duration: time.Since(started),
		}, nil
	}

	log.Info().Str("target", target.Address).Msg("uploading")
	uploadStart := time.Now()
	err = e.deps.Tool.Upload(ctx, dev.ConfigFile, target.Address, e.uploadTimeout(), sink)
	e.deps.Metrics.UploadObserved(time.Since(uploadStart))
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewInterruptedError(ctx.Err())
		}
		log.Error().Err(err).Msg("upload failed")
		result := &deviceResult{
			Outcome:  progress.OutcomeFailed,
			Reason:   fmt.Sprintf("upload failed: %v", err),
			Target:   target.Address,
			Duration: time.Since(started),
		}
		if e.opts.StopOnUploadError {
			return result, NewUploadError("upload failed", err).WithDevice(dev.Name)
		}
		return result, nil
	}

	log.Info().Str("target", target.Address).Msg("update complete")
	return &deviceResult{
		Outcome:  progress.OutcomeDone,
		Target:   target.Address,
		Duration: time.Since(started),
	}, nil
}

// archiveArtifact copies the located binary into the builds directory
// so the last-good firmware for each device survives rebuilds. Failure
// is a warning; the upload proceeds from the in-container copy.
func (e *Engine) archiveArtifact(ctx context.Context, log zerolog.Logger, dev discovery.Device, art artifact.Artifact) {
	if e.opts.BuildsDir == "" {
		return
	}
	dst := filepath.Join(e.opts.BuildsDir, dev.Name+".bin")
	if err := e.deps.Tool.CopyArtifact(ctx, art.Path, dst); err != nil {
		log.Warn().Err(err).Str("dst", dst).Msg("failed to archive firmware binary")
		return
	}
	log.Debug().Str("dst", dst).Msg("firmware binary archived")
}

func (e *Engine) compileTimeout() time.Duration {
	return time.Duration(e.opts.CompileTimeout) * time.Second
}

func (e *Engine) uploadTimeout() time.Duration {
	return time.Duration(e.opts.UploadTimeout) * time.Second
}
