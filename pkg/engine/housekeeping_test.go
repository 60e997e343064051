package engine

import (
	"context"
	"os"
	"testing"

	"github.com/espfleet/espfleet/pkg/config"
	"github.com/espfleet/espfleet/pkg/progress"
)

func TestClearProgressNowFiresOnce(t *testing.T) {
	h := newHarness(t, testDevices("bedroom"), func(o *config.Options) {
		o.ClearProgressNow = true
	})

	prior := progress.NewProgress()
	prior.Record("bedroom", progress.OutcomeDone)
	if err := h.progress.Save(prior); err != nil {
		t.Fatalf("failed to seed progress: %v", err)
	}

	// First run: the trigger fires, progress is cleared, so the device
	// is eligible again.
	summary, err := h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if summary.Eligible != 1 {
		t.Fatalf("expected cleared progress to re-admit the device, eligible=%d", summary.Eligible)
	}

	st := h.state.Load()
	if !st.ClearProgressConsumed {
		t.Fatal("expected consumed marker to be persisted")
	}

	// Second run with the option still true: the trigger must not fire
	// again, so the done marker from the first run survives.
	summary, err = h.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if summary.Eligible != 0 {
		t.Fatalf("consumed trigger fired again, eligible=%d", summary.Eligible)
	}
}

func TestClearProgressTriggerRearms(t *testing.T) {
	h := newHarness(t, testDevices("bedroom"), nil)

	st := h.state.Load()
	st.ClearProgressConsumed = true
	if err := h.state.Save(st); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}

	// Option back to false: the consumed marker resets.
	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	st = h.state.Load()
	if st.ClearProgressConsumed {
		t.Fatal("expected consumed marker to reset when the option is false")
	}
}

func TestClearLogOnStart(t *testing.T) {
	h := newHarness(t, testDevices("bedroom"), func(o *config.Options) {
		o.ClearLogOnStart = true
	})

	if err := os.WriteFile(h.opts.LogFile, []byte("old log lines\n"), 0o644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(h.opts.LogFile)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected truncated log, got %d bytes", len(data))
	}
}

func TestVersionChangeClearsLog(t *testing.T) {
	h := newHarness(t, testDevices("bedroom"), nil)

	st := h.state.Load()
	st.LastVersion = "2025.7.0"
	if err := h.state.Save(st); err != nil {
		t.Fatalf("failed to seed state: %v", err)
	}
	if err := os.WriteFile(h.opts.LogFile, []byte("old log lines\n"), 0o644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	// The fake tool reports 2025.8.0, a change from the stored version.
	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(h.opts.LogFile)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected log cleared on version change, got %d bytes", len(data))
	}

	st = h.state.Load()
	if st.LastVersion != "2025.8.0" {
		t.Errorf("expected stored version updated, got %q", st.LastVersion)
	}
}

func TestFirstSeenVersionDoesNotClearLog(t *testing.T) {
	h := newHarness(t, testDevices("bedroom"), nil)

	if err := os.WriteFile(h.opts.LogFile, []byte("old log lines\n"), 0o644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	// No stored version yet: recording the first one is not a change.
	if _, err := h.engine.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(h.opts.LogFile)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if len(data) == 0 {
		t.Error("log should not be cleared on first version observation")
	}
}
