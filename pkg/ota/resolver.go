package ota

import (
	"context"
	"net"
	"strings"

	"github.com/espfleet/espfleet/pkg/discovery"
)

// LinkLocalSuffix is appended to bare hostnames so they resolve via
// mDNS on the local network without a central DNS entry.
const LinkLocalSuffix = ".local"

// Target is a resolved upload destination.
type Target struct {
	// Address is what gets passed to the uploader's --device flag.
	Address string

	// Source records which fallback produced the address, for logging.
	Source Source
}

// Source identifies the fallback that produced a target address.
type Source string

const (
	SourceDeclared  Source = "declared"
	SourceBuildName Source = "build-name"
	SourceDevice    Source = "device-name"
)

// IsLiteralIP reports whether the target address is a literal IP, which
// makes it eligible for a reachability probe.
func (t Target) IsLiteralIP() bool {
	return net.ParseIP(t.Address) != nil
}

// ResolveTarget picks the upload destination for a device. buildName is
// the build-derived identifier from the artifact resolver; it is empty
// before compilation or when no artifact was found.
func ResolveTarget(dev discovery.Device, buildName string) Target {
	if addr := strings.TrimSpace(dev.Address); addr != "" {
		if net.ParseIP(addr) != nil {
			return Target{Address: addr, Source: SourceDeclared}
		}
		return Target{Address: withLinkLocal(addr), Source: SourceDeclared}
	}
	if buildName != "" {
		return Target{Address: withLinkLocal(buildName), Source: SourceBuildName}
	}
	return Target{Address: withLinkLocal(dev.OTAName()), Source: SourceDevice}
}

func withLinkLocal(host string) string {
	if strings.HasSuffix(host, LinkLocalSuffix) {
		return host
	}
	return host + LinkLocalSuffix
}

// Prober checks whether a host answers a single network echo.
type Prober interface {
	Reachable(ctx context.Context, host string) bool
}

// ShouldSkipOffline reports whether the device should be skipped as
// offline: only when offline-skip is enabled, the target is a literal
// IP, and the probe says the host is down. Name targets are never
// probed.
func ShouldSkipOffline(ctx context.Context, target Target, skipOffline bool, prober Prober) bool {
	if !skipOffline || prober == nil {
		return false
	}
	if !target.IsLiteralIP() {
		return false
	}
	return !prober.Reachable(ctx, target.Address)
}
