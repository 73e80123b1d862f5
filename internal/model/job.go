package model

import "time"

// JobState is the lifecycle state of a background research job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobInProgress JobState = "in_progress"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// rank orders states so transitions can be checked for regression.
func (s JobState) rank() int {
	switch s {
	case JobQueued:
		return 0
	case JobInProgress:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Advance returns the state after observing next. States never regress, and
// a terminal state is never replaced.
func (s JobState) Advance(next JobState) JobState {
	if s.Terminal() {
		return s
	}
	if next.rank() < s.rank() {
		return s
	}
	return next
}

// BackgroundResearchJob is the caller-owned handle to a provider-side
// research job.
type BackgroundResearchJob struct {
	JobID        string    `json:"jobId"`
	Status       JobState  `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastPolledAt time.Time `json:"lastPolledAt,omitempty"`
}

// JobStatus is the result of a status check.
type JobStatus struct {
	Status     JobState            `json:"status"`
	IsComplete bool                `json:"isComplete"`
	Result     *ProofSignalsBundle `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}
