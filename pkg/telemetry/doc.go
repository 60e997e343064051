// Package telemetry wires structured logging and metrics for the
// updater.
//
// Logging follows a split-stream contract: the console shows events at
// or above the configured verbosity, while the append-only log file
// always receives the full, unfiltered stream. Both streams are
// human-readable timestamped lines.
//
// Metrics are Prometheus counters and histograms for run and per-device
// outcomes, served over HTTP for the duration of a run when enabled.
// A multi-minute batch run is long enough for a scrape or two, and the
// counters make fleet-wide dashboards possible without parsing logs.
package telemetry
