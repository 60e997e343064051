package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// Outcome is the terminal classification a device reaches in a run.
type Outcome string

const (
	// OutcomeDone means the device was updated successfully (or marked
	// done by a dry run).
	OutcomeDone Outcome = "done"

	// OutcomeFailed means compilation or upload failed for the device.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the device was deliberately not attempted,
	// for example because it was offline.
	OutcomeSkipped Outcome = "skipped"
)

// Progress holds the three disjoint sets of device names tracked across
// runs. A name appears in at most one set; Record enforces that.
type Progress struct {
	Done    []string `json:"done"`
	Failed  []string `json:"failed"`
	Skipped []string `json:"skipped"`
}

// NewProgress returns an empty progress record.
func NewProgress() *Progress {
	return &Progress{
		Done:    []string{},
		Failed:  []string{},
		Skipped: []string{},
	}
}

// Record moves the named device into the set for the given outcome and
// removes it from the other two, keeping the sets disjoint. Recording
// OutcomeDone for a device that failed on a previous run discards the
// stale failed entry.
func (p *Progress) Record(name string, outcome Outcome) {
	p.Done = remove(p.Done, name)
	p.Failed = remove(p.Failed, name)
	p.Skipped = remove(p.Skipped, name)

	switch outcome {
	case OutcomeDone:
		p.Done = append(p.Done, name)
	case OutcomeFailed:
		p.Failed = append(p.Failed, name)
	case OutcomeSkipped:
		p.Skipped = append(p.Skipped, name)
	}
}

// Lookup reports the set the named device is in, if any.
func (p *Progress) Lookup(name string) (Outcome, bool) {
	switch {
	case contains(p.Done, name):
		return OutcomeDone, true
	case contains(p.Failed, name):
		return OutcomeFailed, true
	case contains(p.Skipped, name):
		return OutcomeSkipped, true
	}
	return "", false
}

// Counts returns the sizes of the done, failed and skipped sets.
func (p *Progress) Counts() (done, failed, skipped int) {
	return len(p.Done), len(p.Failed), len(p.Skipped)
}

func (p *Progress) normalize() {
	p.Done = dedupeSorted(p.Done)
	p.Failed = dedupeSorted(p.Failed)
	p.Skipped = dedupeSorted(p.Skipped)
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

func remove(set []string, name string) []string {
	out := set[:0]
	for _, s := range set {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}

func dedupeSorted(set []string) []string {
	if set == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(set))
	out := make([]string, 0, len(set))
	for _, s := range set {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Store reads and writes the progress file.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "progress").Logger(),
	}
}

// Path returns the location of the progress file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the progress file. A missing or unreadable file yields an
// empty record; resuming from nothing is always safe.
func (s *Store) Load() *Progress {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("progress file unreadable, starting fresh")
		}
		return NewProgress()
	}

	p := NewProgress()
	if err := json.Unmarshal(data, p); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("progress file corrupt, starting fresh")
		return NewProgress()
	}
	p.normalize()
	return p
}

// Save writes the full progress record, deduplicating and sorting each
// set first. A write failure is logged and returned but callers treat it
// as non-fatal; the run continues with the in-memory record.
func (s *Store) Save(p *Progress) error {
	p.normalize()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	if err := atomicWrite(s.path, data); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to write progress file")
		return err
	}
	return nil
}

// Clear resets the progress file to an empty record.
func (s *Store) Clear() error {
	return s.Save(NewProgress())
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, so readers never observe a partial document.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
