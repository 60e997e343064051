package esphome

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/espfleet/espfleet/pkg/runtime"
)

// scriptedRuntime returns canned results keyed by the esphome
// subcommand and records invocations.
type scriptedRuntime struct {
	results map[string]runtime.Result
	execErr error
	calls   [][]string
	copies  [][2]string
}

func (s *scriptedRuntime) Exec(_ context.Context, _ time.Duration, sink runtime.LineSink, args ...string) (runtime.Result, error) {
	s.calls = append(s.calls, args)
	if s.execErr != nil {
		return runtime.Result{}, s.execErr
	}
	res := s.results[args[1]]
	if sink != nil {
		for _, line := range strings.Split(res.Output, "\n") {
			sink(line)
		}
	}
	return res, nil
}

func (s *scriptedRuntime) CopyOut(_ context.Context, src, dst string) error {
	s.copies = append(s.copies, [2]string{src, dst})
	return nil
}

func newTestClient(rt Runtime) *Client {
	return NewClient(rt, "/config/esphome", zerolog.Nop())
}

func TestCompileSuccess(t *testing.T) {
	rt := &scriptedRuntime{results: map[string]runtime.Result{"compile": {Code: 0}}}
	c := newTestClient(rt)

	if err := c.Compile(context.Background(), "ai001.yaml", time.Minute, nil); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	call := rt.calls[0]
	want := []string{"esphome", "compile", "/config/esphome/ai001.yaml"}
	for i, arg := range want {
		if call[i] != arg {
			t.Errorf("arg[%d] = %q, want %q", i, call[i], arg)
		}
	}
}

func TestCompileFailureClassified(t *testing.T) {
	rt := &scriptedRuntime{results: map[string]runtime.Result{
		"compile": {Code: 1, Output: "Cannot connect to the Docker daemon"},
	}}
	c := newTestClient(rt)

	err := c.Compile(context.Background(), "ai001.yaml", time.Minute, nil)
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want ToolError", err)
	}
	if terr.Kind != runtime.FailureRuntime || terr.Op != "compile" {
		t.Errorf("ToolError = %+v", terr)
	}
}

func TestCompileTimeout(t *testing.T) {
	rt := &scriptedRuntime{results: map[string]runtime.Result{
		"compile": {Code: 124, TimedOut: true, Output: "still compiling..."},
	}}
	c := newTestClient(rt)

	err := c.Compile(context.Background(), "ai001.yaml", time.Minute, nil)
	var terr *ToolError
	if !errors.As(err, &terr) || terr.Kind != runtime.FailureTimeout {
		t.Errorf("err = %v, want timeout ToolError", err)
	}
}

func TestUploadSuccessByExitCode(t *testing.T) {
	rt := &scriptedRuntime{results: map[string]runtime.Result{"upload": {Code: 0}}}
	c := newTestClient(rt)

	if err := c.Upload(context.Background(), "ai001.yaml", "192.168.1.23", time.Minute, nil); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	call := rt.calls[0]
	if call[3] != "--device" || call[4] != "192.168.1.23" {
		t.Errorf("upload args = %v, want --device target", call)
	}
}

func TestUploadSuccessBySubstringDespiteNonZeroExit(t *testing.T) {
	rt := &scriptedRuntime{results: map[string]runtime.Result{
		"upload": {Code: 1, Output: "INFO OTA successful\nWARNING cleanup failed"},
	}}
	c := newTestClient(rt)

	if err := c.Upload(context.Background(), "ai001.yaml", "ai001.local", time.Minute, nil); err != nil {
		t.Errorf("Upload should honor success substring, got %v", err)
	}
}

func TestUploadFailureSubClassification(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   runtime.FailureKind
	}{
		{"refused", "Connecting: Connection refused", runtime.FailureConnection},
		{"auth", "Authentication failed", runtime.FailureAuth},
		{"generic", "something else went wrong", runtime.FailureTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &scriptedRuntime{results: map[string]runtime.Result{
				"upload": {Code: 1, Output: tt.output},
			}}
			c := newTestClient(rt)

			err := c.Upload(context.Background(), "ai001.yaml", "ai001.local", time.Minute, nil)
			var terr *ToolError
			if !errors.As(err, &terr) || terr.Kind != tt.want {
				t.Errorf("err = %v, want kind %v", err, tt.want)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name   string
		result runtime.Result
		want   string
	}{
		{"parses banner", runtime.Result{Code: 0, Output: "ESPHome 2025.8.1"}, "2025.8.1"},
		{"version word", runtime.Result{Code: 0, Output: "ESPHome version 2024.12.0"}, "2024.12.0"},
		{"garbage", runtime.Result{Code: 0, Output: "no banner here"}, VersionUnknown},
		{"tool failed", runtime.Result{Code: 2}, VersionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &scriptedRuntime{results: map[string]runtime.Result{"version": tt.result}}
			if got := newTestClient(rt).Version(context.Background()); got != tt.want {
				t.Errorf("Version = %q, want %q", got, tt.want)
			}
		})
	}
}
