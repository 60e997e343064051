package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/progress"
)

// Decision is the outcome of an eligibility check. Reason is always set
// when Include is false and names the first rule that excluded the
// device.
type Decision struct {
	Include bool
	Reason  string
}

func include() Decision {
	return Decision{Include: true}
}

func exclude(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// ShouldProcess applies the eligibility rules in order; the first
// matching rule wins.
//
//  1. A device already in any progress set is excluded.
//  2. Device-name include patterns, when configured, must match.
//  3. Device-name exclude patterns must not match.
//  4. The same two checks against the configuration file name.
//  5. Version gating: no deployed version known, or versions equal.
//  6. Otherwise included.
func ShouldProcess(dev discovery.Device, opts config.Options, prog *progress.Progress) Decision {
	if outcome, ok := prog.Lookup(dev.Name); ok {
		return exclude("already %s in a previous run", outcome)
	}

	if d := matchPatterns(dev.Name, "device name", opts.DeviceInclude, opts.DeviceExclude); !d.Include {
		return d
	}
	if d := matchPatterns(dev.ConfigFile, "config file", opts.ConfigInclude, opts.ConfigExclude); !d.Include {
		return d
	}

	if dev.DeployedVersion == "" && !opts.UpdateWhenNoDeployedVersion {
		return exclude("no deployed version known and update_when_no_deployed_version is off")
	}
	if dev.DeployedVersion != "" && dev.CurrentVersion != "" &&
		dev.DeployedVersion == dev.CurrentVersion && !opts.UpdateWhenVersionMatches {
		return exclude("already up to date (%s)", dev.DeployedVersion)
	}

	return include()
}

func matchPatterns(value, what string, includes, excludes []string) Decision {
	if hasPatterns(includes) && !matchesAny(value, includes) {
		return exclude("%s %q matches no include pattern", what, value)
	}
	for _, pat := range excludes {
		if Match(value, pat) {
			return exclude("%s %q matches exclude pattern %q", what, value, pat)
		}
	}
	return include()
}

func hasPatterns(patterns []string) bool {
	for _, p := range patterns {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func matchesAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if Match(value, p) {
			return true
		}
	}
	return false
}

// Match reports whether value matches the pattern. Patterns are globs
// where * matches any run of characters; matching is case-insensitive
// and unanchored, so a pattern matches anywhere in the value. An empty
// pattern never matches (it means "no constraint", which the callers
// realize by skipping it).
func Match(value, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	return patternRegexp(pattern).MatchString(value)
}

func patternRegexp(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, ".*"))
}
