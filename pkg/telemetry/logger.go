package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// timeFormat is the per-line timestamp layout for both streams.
const timeFormat = "2006-01-02 15:04:05"

// Verbosity names a console filtering level.
type Verbosity string

const (
	VerbosityQuiet   Verbosity = "quiet"
	VerbosityNormal  Verbosity = "normal"
	VerbosityVerbose Verbosity = "verbose"
	VerbosityDebug   Verbosity = "debug"
)

// Level maps a verbosity to the minimum zerolog level shown on the
// console. Unrecognized values behave like normal.
func (v Verbosity) Level() zerolog.Level {
	switch v {
	case VerbosityQuiet:
		return zerolog.WarnLevel
	case VerbosityVerbose:
		return zerolog.DebugLevel
	case VerbosityDebug:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger builds the split-stream logger: console output filtered to
// the given verbosity, the log file receiving everything. The returned
// closer flushes and closes the file; it is safe to call when the file
// could not be opened (file logging is then disabled, not fatal).
func NewLogger(logFile string, verbosity Verbosity) (zerolog.Logger, func()) {
	console := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: timeFormat,
		}},
		Level: verbosity.Level(),
	}

	writers := []io.Writer{console}
	closer := func() {}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
			f, ferr := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if ferr == nil {
				writers = append(writers, zerolog.ConsoleWriter{
					Out:        f,
					NoColor:    true,
					TimeFormat: timeFormat,
				})
				closer = func() { _ = f.Close() }
			}
		}
	}

	// The logger itself runs at trace so the file stream stays
	// unfiltered; the console writer does its own filtering.
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.TraceLevel).
		With().Timestamp().Logger()

	return logger, closer
}

// TruncateLog clears the log file in place, for the housekeeping
// clear-log triggers.
func TruncateLog(logFile string) error {
	if logFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to truncate %s: %w", logFile, err)
	}
	return f.Close()
}
