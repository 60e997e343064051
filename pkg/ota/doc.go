// Package ota decides the network target for delivering firmware to a
// device and, optionally, probes the target's reachability first.
//
// Target resolution is a fallback chain: a declared address from the
// device configuration or dashboard metadata, then the name the build
// tool derived during compilation, then the device's own name, the last
// two with the link-local suffix appended so mDNS can resolve them.
// Only literal IP addresses are ever probed; name targets need the
// resolution step the probe cannot perform and proceed straight to
// upload.
package ota
