package stores

import "time"

// RunStatus is the final classification of a recorded run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusAborted     RunStatus = "aborted"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is one update run.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	ToolVersion string     `json:"tool_version"`
	DryRun      bool       `json:"dry_run"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Done        int        `json:"done"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
}

// DeviceOutcome is one device's terminal result within a run.
type DeviceOutcome struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Device     string    `json:"device"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	Target     string    `json:"target"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
