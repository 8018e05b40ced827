package job

import "time"

// Status describes where a job is in its lifecycle.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether no further transitions may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	default:
		return false
	}
}

// CanTransition enforces the allowed status machine edges.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to.Terminal()
	default:
		return false
	}
}

// Job is one requested transcoding task from input file to output file.
type Job struct {
	ID        string
	InputPath string
	Params    Params

	// DestPath is where the engine is told to write. OutputPath is only
	// set once the job succeeds and the file is known to exist.
	DestPath   string
	OutputPath string

	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExitCode    *int
	Error       string
}

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}
