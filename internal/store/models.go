package store

import "time"

// RunStatus is the lifecycle state of a capture run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// Run is one recorded capture run.
type Run struct {
	ID         string     `json:"id"`
	JenkinsURL string     `json:"jenkins_url"`
	Job        string     `json:"job"`
	Build      int        `json:"build"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Artifact kinds.
const (
	KindScreenshot  = "screenshot"
	KindConsoleText = "console-text"
)

// Artifact is one file saved by a capture run.
type Artifact struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest is written to each run directory when the run finishes.
type Manifest struct {
	Run       Run        `json:"run"`
	Artifacts []Artifact `json:"artifacts"`
}
