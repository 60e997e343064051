// Package stores persists run history in SQLite: one row per update
// run and one row per device outcome within it. The history is purely
// diagnostic (resume correctness rests on the progress file alone)
// but it answers questions the progress file cannot, like "when did
// this device last upload successfully" or "how long do compiles take
// lately".
package stores
