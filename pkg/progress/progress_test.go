package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "progress.json"), zerolog.Nop())
}

func TestLoadMissingFile(t *testing.T) {
	store := testStore(t)

	p := store.Load()
	if d, f, s := p.Counts(); d != 0 || f != 0 || s != 0 {
		t.Errorf("expected empty progress, got done=%d failed=%d skipped=%d", d, f, s)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := store.Load()
	if d, f, s := p.Counts(); d != 0 || f != 0 || s != 0 {
		t.Errorf("expected empty progress from corrupt file, got done=%d failed=%d skipped=%d", d, f, s)
	}
}

func TestSaveAndReload(t *testing.T) {
	store := testStore(t)

	p := NewProgress()
	p.Record("kitchen", OutcomeDone)
	p.Record("porch", OutcomeFailed)
	p.Record("garage", OutcomeSkipped)

	if err := store.Save(p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := store.Load()
	if len(got.Done) != 1 || got.Done[0] != "kitchen" {
		t.Errorf("done = %v, want [kitchen]", got.Done)
	}
	if len(got.Failed) != 1 || got.Failed[0] != "porch" {
		t.Errorf("failed = %v, want [porch]", got.Failed)
	}
	if len(got.Skipped) != 1 || got.Skipped[0] != "garage" {
		t.Errorf("skipped = %v, want [garage]", got.Skipped)
	}
}

func TestRecordKeepsSetsDisjoint(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     Outcome
	}{
		{"retry after failure", []Outcome{OutcomeFailed, OutcomeDone}, OutcomeDone},
		{"fail after done", []Outcome{OutcomeDone, OutcomeFailed}, OutcomeFailed},
		{"skip then done", []Outcome{OutcomeSkipped, OutcomeDone}, OutcomeDone},
		{"repeated done", []Outcome{OutcomeDone, OutcomeDone}, OutcomeDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress()
			for _, o := range tt.outcomes {
				p.Record("dev", o)
			}

			got, ok := p.Lookup("dev")
			if !ok || got != tt.want {
				t.Errorf("Lookup = %v ok=%v, want %v", got, ok, tt.want)
			}
			d, f, s := p.Counts()
			if d+f+s != 1 {
				t.Errorf("device appears in %d sets, want exactly 1", d+f+s)
			}
		})
	}
}

func TestSaveDeduplicatesAndSorts(t *testing.T) {
	store := testStore(t)

	p := &Progress{
		Done:    []string{"b", "a", "b", "a"},
		Failed:  []string{},
		Skipped: []string{},
	}
	if err := store.Save(p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		Done []string `json:"done"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw.Done) != 2 || raw.Done[0] != "a" || raw.Done[1] != "b" {
		t.Errorf("persisted done = %v, want [a b]", raw.Done)
	}
}

func TestSaveDoesNotLeaveTempFiles(t *testing.T) {
	store := testStore(t)
	if err := store.Save(NewProgress()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only progress.json in dir, got %v", names)
	}
}

func TestClear(t *testing.T) {
	store := testStore(t)

	p := NewProgress()
	p.Record("kitchen", OutcomeDone)
	if err := store.Save(p); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	got := store.Load()
	if d, f, s := got.Counts(); d+f+s != 0 {
		t.Errorf("expected empty progress after Clear, got done=%d failed=%d skipped=%d", d, f, s)
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(filepath.Join(dir, "state.json"), zerolog.Nop())

	st := store.Load()
	if st.LastVersion != "" || st.ClearLogConsumed || st.ClearProgressConsumed {
		t.Errorf("expected zero state, got %+v", st)
	}

	st.LastVersion = "2025.8.1"
	st.ClearLogConsumed = true
	if err := store.Save(st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got := store.Load()
	if got.LastVersion != "2025.8.1" || !got.ClearLogConsumed {
		t.Errorf("reloaded state = %+v", got)
	}
}

func TestConsumeTrigger(t *testing.T) {
	tests := []struct {
		name               string
		configured         bool
		consumed           bool
		wantFire           bool
		wantChanged        bool
		wantConsumedAfter  bool
	}{
		{"armed and configured fires once", true, false, true, true, true},
		{"already consumed does not refire", true, true, false, false, true},
		{"cleared config re-arms", false, true, false, true, false},
		{"idle", false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumed := tt.consumed
			fire, changed := ConsumeTrigger(tt.configured, &consumed)
			if fire != tt.wantFire || changed != tt.wantChanged || consumed != tt.wantConsumedAfter {
				t.Errorf("ConsumeTrigger(%v, %v) = fire=%v changed=%v consumed=%v, want fire=%v changed=%v consumed=%v",
					tt.configured, tt.consumed, fire, changed, consumed,
					tt.wantFire, tt.wantChanged, tt.wantConsumedAfter)
			}
		})
	}
}
