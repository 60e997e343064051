package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Device is one discovered device configuration. Name is the stable
// identifier derived from the configuration file's base name; Node is
// the name declared inside the document when one could be extracted.
// Empty version strings mean "absent"; the literal "unknown" means the
// dashboard could not determine the version.
type Device struct {
	Name            string
	Node            string
	ConfigFile      string
	ConfigPath      string
	Address         string
	DeployedVersion string
	CurrentVersion  string
}

// OTAName returns the name the device announces on the network: the
// declared node name when present, the file-derived name otherwise.
func (d Device) OTAName() string {
	if d.Node != "" {
		return d.Node
	}
	return d.Name
}

// DashboardEntry is the per-device record in the dashboard metadata
// file maintained by the ESPHome tool.
type DashboardEntry struct {
	Address         string `json:"address"`
	DeployedVersion string `json:"deployed_version"`
	CurrentVersion  string `json:"current_version"`
}

// Discoverer enumerates device configurations under a fixed directory.
type Discoverer struct {
	configDir     string
	dashboardPath string
	logger        zerolog.Logger
}

// NewDiscoverer creates a discoverer for the given config directory.
// The dashboard metadata file is expected at .dashboard.json inside it.
func NewDiscoverer(configDir string, logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		configDir:     configDir,
		dashboardPath: filepath.Join(configDir, ".dashboard.json"),
		logger:        logger.With().Str("component", "discovery").Logger(),
	}
}

// Discover returns one Device per *.yaml document in the config
// directory, sorted by name. An unreadable document still yields a
// record (with only the file-derived name); a missing directory is an
// error because every run needs at least one device configuration.
func (d *Discoverer) Discover() ([]Device, error) {
	entries, err := os.ReadDir(d.configDir)
	if err != nil {
		return nil, fmt.Errorf("config directory %s not readable: %w", d.configDir, err)
	}

	dashboard := d.readDashboard()

	devices := make([]Device, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(d.configDir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".yaml")

		dev := Device{
			Name:       name,
			ConfigFile: entry.Name(),
			ConfigPath: path,
		}

		text, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn().Err(err).Str("config", entry.Name()).Msg("config unreadable, keeping bare record")
		} else {
			dev.Node = extractNodeName(string(text))
			dev.Address = extractManualIP(string(text))
		}

		if meta, ok := dashboard[dev.OTAName()]; ok {
			dev.DeployedVersion = meta.DeployedVersion
			dev.CurrentVersion = meta.CurrentVersion
			if dev.Address == "" {
				dev.Address = meta.Address
			}
		} else if meta, ok := dashboard[name]; ok {
			dev.DeployedVersion = meta.DeployedVersion
			dev.CurrentVersion = meta.CurrentVersion
			if dev.Address == "" {
				dev.Address = meta.Address
			}
		}

		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices, nil
}

// readDashboard loads the dashboard metadata file. Any failure yields an
// empty map; version gating then falls back to "no version known".
func (d *Discoverer) readDashboard() map[string]DashboardEntry {
	data, err := os.ReadFile(d.dashboardPath)
	if err != nil {
		return nil
	}
	dashboard := make(map[string]DashboardEntry)
	if err := json.Unmarshal(data, &dashboard); err != nil {
		d.logger.Warn().Err(err).Str("path", d.dashboardPath).Msg("dashboard metadata unreadable")
		return nil
	}
	return dashboard
}

// yamlHeader is the subset of an ESPHome document a strict parse can
// extract a node name from.
type yamlHeader struct {
	Esphome struct {
		Name string `yaml:"name"`
	} `yaml:"esphome"`
	Name string `yaml:"name"`
}

var (
	nameLineRE     = regexp.MustCompile(`(?m)^\s+name\s*:\s*([^\s#]+)\s*$`)
	topLevelNameRE = regexp.MustCompile(`(?m)^name\s*:\s*([^\s#]+)`)
	esphomeBlockRE = regexp.MustCompile(`(?m)^esphome\s*:\s*$`)
	manualIPRE     = regexp.MustCompile(`manual_ip\s*:\s*([0-9]{1,3}(?:\.[0-9]{1,3}){3})`)
	staticIPRE     = regexp.MustCompile(`static_ip\s*:\s*([0-9]{1,3}(?:\.[0-9]{1,3}){3})`)
)

// extractNodeName pulls the declared device name out of a configuration
// document. Strict YAML first, then a pattern scan of the esphome: block
// for documents the strict parser rejects.
func extractNodeName(text string) string {
	var hdr yamlHeader
	if err := yaml.Unmarshal([]byte(text), &hdr); err == nil {
		if hdr.Esphome.Name != "" {
			return strings.TrimSpace(hdr.Esphome.Name)
		}
		if hdr.Name != "" {
			return strings.TrimSpace(hdr.Name)
		}
	}

	loc := esphomeBlockRE.FindStringIndex(text)
	if loc == nil {
		if m := topLevelNameRE.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}

	// Scan the indented block following esphome: for a name line,
	// stopping at the next top-level section.
	for _, line := range strings.Split(text[loc[1]:], "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			break
		}
		if m := nameLineRE.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// extractManualIP pulls a manually configured IP address out of a
// configuration document, trying the inline manual_ip form first and
// the nested static_ip form second.
func extractManualIP(text string) string {
	if m := manualIPRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := staticIPRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
