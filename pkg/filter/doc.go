// Package filter decides, per device, whether it is eligible for
// processing in the current run. The decision is pure: given the same
// device record, options and progress sets it always returns the same
// answer, which keeps it directly testable without any I/O.
package filter
