package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("esphome:\n"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestCheckConfigDirRequiresYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "lounge.yaml")
	writeConfig(t, dir, "secrets.txt")

	p := NewDockerPreflight(nil, dir, zerolog.Nop())
	if err := p.checkConfigDir(); err != nil {
		t.Fatalf("expected populated directory to pass, got %v", err)
	}
}

// A directory holding only .yml files counts as empty: discovery never
// reads that extension, so passing preflight here would lead straight
// into a zero-device run.
func TestCheckConfigDirRejectsYMLOnly(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "lounge.yml")
	writeConfig(t, dir, "kitchen.yml")

	p := NewDockerPreflight(nil, dir, zerolog.Nop())
	err := p.checkConfigDir()
	if !IsPrecondition(err) {
		t.Fatalf("expected precondition error for yml-only directory, got %v", err)
	}
}

func TestCheckConfigDirUnreadable(t *testing.T) {
	p := NewDockerPreflight(nil, filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	if err := p.checkConfigDir(); !IsPrecondition(err) {
		t.Fatalf("expected precondition error for missing directory, got %v", err)
	}
}
