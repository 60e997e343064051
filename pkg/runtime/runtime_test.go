package runtime

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   FailureKind
	}{
		{"daemon down", "Cannot connect to the Docker daemon at unix:///run/docker.sock", FailureRuntime},
		{"container missing", "Error: No such container: addon_esphome", FailureRuntime},
		{"container stopped", "container addon_esphome is not running", FailureRuntime},
		{"refused", "ERROR Connecting to 192.168.1.23 port 3232: Connection refused", FailureConnection},
		{"resolve failure", "ERROR Error resolving IP address of ai001.local", FailureConnection},
		{"auth", "ERROR Authentication failed for 192.168.1.23", FailureAuth},
		{"timeout", "ERROR Timeout while waiting for response", FailureTimeout},
		{"plain build error", "src/main.cpp:42: error: expected ';'", FailureTool},
		{"empty", "", FailureTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.output); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestTailWriterKeepsLastLines(t *testing.T) {
	w := newTailWriter(3, nil)
	for _, line := range []string{"one", "two", "three", "four", "five"} {
		if _, err := w.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
	}

	got := w.String()
	want := "three\nfour\nfive"
	if got != want {
		t.Errorf("tail = %q, want %q", got, want)
	}
}

func TestTailWriterFlushesPartialLine(t *testing.T) {
	var seen []string
	w := newTailWriter(10, func(line string) { seen = append(seen, line) })

	if _, err := w.Write([]byte("complete\npartial")); err != nil {
		t.Fatal(err)
	}
	w.flush()

	if len(seen) != 2 || seen[0] != "complete" || seen[1] != "partial" {
		t.Errorf("sink saw %v, want [complete partial]", seen)
	}
}

func TestTailWriterSplitWrites(t *testing.T) {
	w := newTailWriter(10, nil)
	for _, chunk := range []string{"hel", "lo\nwor", "ld\n"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.String(); got != "hello\nworld" {
		t.Errorf("tail = %q, want hello\\nworld", got)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := run(ctx, time.Second, nil, "true")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !res.Cancelled || res.Code != codeTerminated {
		t.Errorf("result = %+v, want cancelled with code %d", res, codeTerminated)
	}
}

func TestRunCapturesExitCodeAndOutput(t *testing.T) {
	res, err := run(context.Background(), 5*time.Second, nil, "sh", "-c", "echo hello; echo oops >&2; exit 7")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if res.Code != 7 {
		t.Errorf("code = %d, want 7", res.Code)
	}
	if !strings.Contains(res.Output, "hello") || !strings.Contains(res.Output, "oops") {
		t.Errorf("output = %q, want combined stdout/stderr", res.Output)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	start := time.Now()
	res, err := run(context.Background(), 200*time.Millisecond, nil, "sh", "-c", "sleep 30")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !res.TimedOut || res.Code != codeTimeout {
		t.Errorf("result = %+v, want timeout with code %d", res, codeTimeout)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v, group was not terminated promptly", elapsed)
	}
}

func TestRunMissingBinary(t *testing.T) {
	if _, err := run(context.Background(), time.Second, nil, "definitely-not-a-binary-xyz"); err == nil {
		t.Error("expected error for missing binary")
	}
}
