package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"precondition", NewPreconditionError("no docker", nil), IsPrecondition},
		{"compile", NewCompileError("boom", errors.New("exit 1")), IsCompile},
		{"artifact", NewArtifactError("missing", nil), IsArtifact},
		{"upload", NewUploadError("OTA failed", nil), IsUpload},
		{"interrupted", NewInterruptedError(nil), IsInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("predicate rejected its own class: %v", tt.err)
			}
			if tt.name != "compile" && IsCompile(tt.err) {
				t.Errorf("IsCompile accepted %v", tt.err)
			}
		})
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	inner := NewUploadError("OTA failed", errors.New("timeout")).WithDevice("bedroom")
	wrapped := fmt.Errorf("run aborted: %w", inner)

	if !IsUpload(wrapped) {
		t.Error("classification lost through wrapping")
	}
	if IsCompile(wrapped) {
		t.Error("wrong class matched through wrapping")
	}

	var ue *UpdateError
	if !errors.As(wrapped, &ue) {
		t.Fatal("errors.As failed")
	}
	if ue.Device != "bedroom" {
		t.Errorf("device context lost: %q", ue.Device)
	}
}

func TestErrorMessageIncludesDevice(t *testing.T) {
	err := NewCompileError("compile failed", errors.New("exit 1")).WithDevice("garage")
	msg := err.Error()
	if msg != "[compile] compile failed (device=garage): exit 1" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestPlainErrorsHaveNoClass(t *testing.T) {
	err := errors.New("plain")
	for name, check := range map[string]func(error) bool{
		"precondition": IsPrecondition,
		"compile":      IsCompile,
		"upload":       IsUpload,
		"interrupted":  IsInterrupted,
	} {
		if check(err) {
			t.Errorf("%s predicate accepted a plain error", name)
		}
	}
}
