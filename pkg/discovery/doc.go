// Package discovery enumerates the device configuration documents in the
// ESPHome config directory and builds one Device record per document.
//
// Extraction from the documents is best effort by design: ESPHome YAML
// routinely carries custom tags (!secret, !include) that a strict parser
// rejects, so a strict parse is attempted first and a permissive
// line-pattern scan takes over when it fails. Absent or malformed fields
// are never an error; the resulting record simply has less information
// and downstream fallbacks (mDNS naming, version gating) cover the gap.
//
// Version strings come from the dashboard metadata file maintained by
// the ESPHome tool itself. "unknown" is a valid version value meaning
// the tool could not determine it, distinct from absent.
package discovery
