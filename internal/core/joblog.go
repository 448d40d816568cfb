package core

import "context"

// JobLog persists import jobs and their per-row results.
//
// UpdateJob must reject writes to a job whose stored status is terminal
// with ErrJobTerminal. Lookups of unknown ids return ErrJobNotFound.
type JobLog interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	UpdateJob(ctx context.Context, job *ImportJob) error
	AppendRowResult(ctx context.Context, result ImportRowResult) error
	GetJob(ctx context.Context, id string) (*ImportJob, error)
	ListRowResults(ctx context.Context, jobID string, filter RowResultFilter) ([]ImportRowResult, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)
}

// RowResultFilter narrows ListRowResults. Results are ordered by row number.
type RowResultFilter struct {
	Outcome Outcome // Empty for all outcomes
	Limit   int     // 0 for no limit
	Offset  int
}

// JobFilter narrows ListJobs. Jobs are ordered newest first.
type JobFilter struct {
	ImportType ImportType
	Status     JobStatus
	Limit      int
	Offset     int
}

// Match reports whether r passes the filter's outcome constraint.
func (f RowResultFilter) Match(r ImportRowResult) bool {
	return f.Outcome == "" || r.Outcome == f.Outcome
}

// Match reports whether j passes the filter's type and status constraints.
func (f JobFilter) Match(j *ImportJob) bool {
	if f.ImportType != "" && j.ImportType != f.ImportType {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	return true
}

// Page applies offset and limit to n items and returns the [lo, hi) range.
func Page(n, offset, limit int) (lo, hi int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	hi = n
	if limit > 0 && offset+limit < n {
		hi = offset + limit
	}
	return offset, hi
}
