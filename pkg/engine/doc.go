// Package engine drives an update run from start to finish: preflight
// checks, housekeeping, device discovery and filtering, then a
// compile-locate-upload state machine per device with progress flushed
// to disk after every device. A run is resumable because the progress
// file, not the engine, is the source of truth for which devices are
// already handled.
package engine
