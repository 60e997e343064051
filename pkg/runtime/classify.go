package runtime

import "strings"

// FailureKind is a coarse classification of an external tool failure,
// derived from substring matching on the combined output. It separates
// "the runtime/container is broken" from "the tool genuinely failed",
// which matters for error reporting: the former is an environment
// problem, not a device problem.
type FailureKind string

const (
	// FailureTool means the tool itself reported a failure.
	FailureTool FailureKind = "tool"

	// FailureRuntime means the container runtime was unreachable or the
	// container is missing/not running.
	FailureRuntime FailureKind = "runtime"

	// FailureConnection means the device refused or dropped the
	// connection during upload.
	FailureConnection FailureKind = "connection"

	// FailureTimeout means the operation timed out.
	FailureTimeout FailureKind = "timeout"

	// FailureAuth means the device rejected the OTA credentials.
	FailureAuth FailureKind = "auth"
)

var runtimeIndicators = []string{
	"cannot connect to the docker daemon",
	"docker: not found",
	"docker: command not found",
	"no such container",
	"is not running",
	"permission denied while trying to connect",
}

var connectionIndicators = []string{
	"connection refused",
	"connection reset",
	"no route to host",
	"network is unreachable",
	"error resolving ip address",
}

var timeoutIndicators = []string{
	"timed out",
	"timeout",
}

var authIndicators = []string{
	"authentication failed",
	"auth failed",
	"wrong password",
	"invalid password",
}

// Classify inspects combined tool output and returns the most specific
// failure kind it recognizes, defaulting to FailureTool.
func Classify(output string) FailureKind {
	lower := strings.ToLower(output)
	switch {
	case matchesAny(lower, runtimeIndicators):
		return FailureRuntime
	case matchesAny(lower, authIndicators):
		return FailureAuth
	case matchesAny(lower, connectionIndicators):
		return FailureConnection
	case matchesAny(lower, timeoutIndicators):
		return FailureTimeout
	}
	return FailureTool
}

func matchesAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
