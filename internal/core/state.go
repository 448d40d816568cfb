package core

// JobStatus is the lifecycle state of an ImportJob.
//
//	pending -> previewed -> running -> completed | partial | failed
//
// pending and previewed may also move straight to failed when a file-level
// problem is found. Terminal states never change.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusPreviewed JobStatus = "previewed"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

var allowedTransitions = map[JobStatus][]JobStatus{
	StatusPending:   {StatusPreviewed, StatusFailed},
	StatusPreviewed: {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusPartial, StatusFailed},
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPreviewed, StatusRunning, StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the given status or returns *InvalidTransitionError.
func (j *ImportJob) Transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return &InvalidTransitionError{JobID: j.ID, From: j.Status, To: to}
	}
	j.Status = to
	return nil
}

// FinalStatus derives the terminal status from the counters.
// aborted is true when a fatal error or cancellation stopped the run.
func FinalStatus(imported, errored int, aborted bool) JobStatus {
	switch {
	case aborted:
		return StatusFailed
	case errored == 0:
		return StatusCompleted
	case imported > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
