package progress

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// State holds housekeeping markers that must survive between runs but
// are not per-device progress: the last add-on version observed, and the
// consumed flags for the one-shot "do X now" configuration triggers.
//
// A trigger fires at most once while its configuration value stays true.
// The consumed flag records that it fired; the flag resets only when the
// configuration value returns to false, re-arming the trigger.
type State struct {
	LastVersion           string `json:"last_version"`
	ClearLogConsumed      bool   `json:"clear_log_now_consumed"`
	ClearProgressConsumed bool   `json:"clear_progress_now_consumed"`
}

// StateStore reads and writes the state file.
type StateStore struct {
	path   string
	logger zerolog.Logger
}

// NewStateStore creates a store backed by the given file path.
func NewStateStore(path string, logger zerolog.Logger) *StateStore {
	return &StateStore{
		path:   path,
		logger: logger.With().Str("component", "state").Logger(),
	}
}

// Load reads the state file, returning zero-value state if it is missing
// or unreadable.
func (s *StateStore) Load() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return &State{}
	}
	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting fresh")
		return &State{}
	}
	return st
}

// Save writes the state file atomically. Failure is logged and returned
// but non-fatal.
func (s *StateStore) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := atomicWrite(s.path, data); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("failed to write state file")
		return err
	}
	return nil
}

// ConsumeTrigger evaluates a one-shot trigger. It returns true exactly
// once per activation: when the configured value is true and the trigger
// has not been consumed yet. It updates the consumed marker in st to
// match and reports whether st changed (so the caller knows to Save).
func ConsumeTrigger(configured bool, consumed *bool) (fire, changed bool) {
	switch {
	case configured && !*consumed:
		*consumed = true
		return true, true
	case !configured && *consumed:
		*consumed = false
		return false, true
	}
	return false, false
}
