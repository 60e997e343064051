package filter

import (
	"testing"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/discovery"
	"github.com/espfleet/espfleet/pkg/progress"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		value   string
		pattern string
		want    bool
	}{
		{"ai001-lounge", "ai*", true},
		{"as007-shop", "ai*", false},
		{"ai001-lounge", "AI*", true},
		{"ai001-lounge", "lounge", true},
		{"ai001-lounge", "*lounge", true},
		{"ai001-lounge", "ai*lounge", true},
		{"ai001-lounge", "shop", false},
		{"anything", "", false},
		{"anything", "   ", false},
		{"a.b", "a.b", true},
		{"axb", "a.b", false},
	}

	for _, tt := range tests {
		if got := Match(tt.value, tt.pattern); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.value, tt.pattern, got, tt.want)
		}
	}
}

func TestShouldProcessDecisionOrder(t *testing.T) {
	base := discovery.Device{
		Name:            "ai001-lounge",
		ConfigFile:      "ai001-lounge.yaml",
		DeployedVersion: "2025.7.0",
		CurrentVersion:  "2025.8.1",
	}

	tests := []struct {
		name    string
		device  func(d discovery.Device) discovery.Device
		opts    func(o config.Options) config.Options
		prog    func(p *progress.Progress)
		include bool
	}{
		{
			name:    "eligible by default",
			include: true,
		},
		{
			name:    "already done",
			prog:    func(p *progress.Progress) { p.Record("ai001-lounge", progress.OutcomeDone) },
			include: false,
		},
		{
			name:    "already failed",
			prog:    func(p *progress.Progress) { p.Record("ai001-lounge", progress.OutcomeFailed) },
			include: false,
		},
		{
			name:    "already skipped",
			prog:    func(p *progress.Progress) { p.Record("ai001-lounge", progress.OutcomeSkipped) },
			include: false,
		},
		{
			name:    "device include miss",
			opts:    func(o config.Options) config.Options { o.DeviceInclude = []string{"as*"}; return o },
			include: false,
		},
		{
			name:    "device include hit",
			opts:    func(o config.Options) config.Options { o.DeviceInclude = []string{"ai*"}; return o },
			include: true,
		},
		{
			name:    "device exclude hit",
			opts:    func(o config.Options) config.Options { o.DeviceExclude = []string{"*lounge"}; return o },
			include: false,
		},
		{
			name:    "empty include patterns are no constraint",
			opts:    func(o config.Options) config.Options { o.DeviceInclude = []string{"", "  "}; return o },
			include: true,
		},
		{
			name:    "config include miss",
			opts:    func(o config.Options) config.Options { o.ConfigInclude = []string{"*.yml"}; return o },
			include: false,
		},
		{
			name:    "config exclude hit",
			opts:    func(o config.Options) config.Options { o.ConfigExclude = []string{"ai001*"}; return o },
			include: false,
		},
		{
			name: "no deployed version gated",
			device: func(d discovery.Device) discovery.Device {
				d.DeployedVersion = ""
				return d
			},
			opts:    func(o config.Options) config.Options { o.UpdateWhenNoDeployedVersion = false; return o },
			include: false,
		},
		{
			name: "no deployed version allowed by default",
			device: func(d discovery.Device) discovery.Device {
				d.DeployedVersion = ""
				return d
			},
			include: true,
		},
		{
			name: "versions equal gated by default",
			device: func(d discovery.Device) discovery.Device {
				d.CurrentVersion = d.DeployedVersion
				return d
			},
			include: false,
		},
		{
			name: "versions equal forced through",
			device: func(d discovery.Device) discovery.Device {
				d.CurrentVersion = d.DeployedVersion
				return d
			},
			opts:    func(o config.Options) config.Options { o.UpdateWhenVersionMatches = true; return o },
			include: true,
		},
		{
			name: "unknown versions are known values, not absent",
			device: func(d discovery.Device) discovery.Device {
				d.DeployedVersion = "unknown"
				d.CurrentVersion = "unknown"
				return d
			},
			include: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := base
			if tt.device != nil {
				dev = tt.device(dev)
			}
			opts := config.Defaults()
			if tt.opts != nil {
				opts = tt.opts(opts)
			}
			prog := progress.NewProgress()
			if tt.prog != nil {
				tt.prog(prog)
			}

			d := ShouldProcess(dev, opts, prog)
			if d.Include != tt.include {
				t.Errorf("Include = %v (reason %q), want %v", d.Include, d.Reason, tt.include)
			}
			if !d.Include && d.Reason == "" {
				t.Error("excluded decision must carry a reason")
			}
		})
	}
}

func TestShouldProcessIsDeterministic(t *testing.T) {
	dev := discovery.Device{Name: "ai001-lounge", ConfigFile: "ai001-lounge.yaml"}
	opts := config.Defaults()
	opts.DeviceInclude = []string{"ai*"}
	prog := progress.NewProgress()

	first := ShouldProcess(dev, opts, prog)
	for i := 0; i < 100; i++ {
		if got := ShouldProcess(dev, opts, prog); got != first {
			t.Fatalf("decision changed on iteration %d: %+v vs %+v", i, got, first)
		}
	}
}
