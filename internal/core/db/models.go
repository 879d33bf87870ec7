package db

// Run is one invocation of a download.
type Run struct {
	ID        string
	URL       string
	Directory string
	Raw       bool
	// StartedAt and FinishedAt are stored in the DB as RFC3339 text.
	StartedAt  string
	FinishedAt string
	Status     string
	Error      string
}

// SnapshotResult is the outcome of one snapshot within a run.
type SnapshotResult struct {
	ID         int64
	RunID      string
	URL        string
	Timestamp  string
	Status     string
	Path       string
	Error      string
	RecordedAt string
}

// Run status values
const (
	RunStatusRunning  = "running"
	RunStatusOK       = "ok"
	RunStatusFailed   = "failed"
	RunStatusCanceled = "canceled"
)
