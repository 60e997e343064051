// Package progress persists the per-device outcomes of an update run so
// that an interrupted run can resume without repeating work.
//
// Two small JSON documents live side by side in the data directory:
//
//   - the progress file, three disjoint sets of device names
//     (done/failed/skipped), rewritten after every device; and
//   - the state file, housekeeping markers such as the last seen add-on
//     version and the consumed flags for one-shot triggers.
//
// Both stores assume a single orchestrator process owns them for the
// duration of a run. Writes go through a temp-file-then-rename cycle so
// a crash mid-write cannot leave a truncated document behind.
package progress
