// Package esphome wraps the ESPHome CLI running inside the build
// container: compile, upload and version. The CLI is a black box here;
// success and failure are judged by exit status plus a small set of
// recognized output substrings, because some CLI versions exit non-zero
// after a perfectly successful OTA.
package esphome
