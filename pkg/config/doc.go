// Package config loads the run configuration for the update orchestrator.
//
// The configuration is a single JSON document (the add-on options file).
// Missing keys fall back to documented defaults, unknown keys are
// ignored, and the resulting struct is validated once at load time.
// After loading, the configuration is immutable for the run; the one-shot
// "now" triggers it contains are consumed through the progress package's
// state store so they do not re-fire on unchanged configuration.
package config
