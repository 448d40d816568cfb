package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easyvol/csvimport/internal/core"
)

// JobLog stores jobs in import_jobs and results in import_row_results.
type JobLog struct {
	pool *pgxpool.Pool
}

// NewJobLog wraps pool.
func NewJobLog(pool *pgxpool.Pool) *JobLog {
	return &JobLog{pool: pool}
}

var _ core.JobLog = (*JobLog)(nil)

const jobColumns = `id, import_type, source_file_name, detected_encoding, detected_delimiter, status,
	update_on_duplicate, mapping, overrides, created_by,
	total_rows, imported_rows, updated_rows, skipped_rows, error_rows,
	error_message, created_at, started_at, finished_at`

// jobSelect mirrors jobColumns with the uuid rendered as text.
var jobSelect = "id::text" + strings.TrimPrefix(jobColumns, "id")

func (l *JobLog) CreateJob(ctx context.Context, job *core.ImportJob) error {
	mapping, overrides, err := marshalJobJSON(job)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO import_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		job.ID, string(job.ImportType), job.SourceFileName, string(job.DetectedEncoding), job.DetectedDelimiter,
		string(job.Status), job.UpdateOnDuplicate, mapping, overrides, job.CreatedBy,
		job.TotalRows, job.ImportedRows, job.UpdatedRows, job.SkippedRows, job.ErrorRows,
		job.ErrorMessage, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import job: %w", Classify(err))
	}
	return nil
}

func (l *JobLog) UpdateJob(ctx context.Context, job *core.ImportJob) error {
	mapping, overrides, err := marshalJobJSON(job)
	if err != nil {
		return err
	}
	tag, err := l.pool.Exec(ctx, `UPDATE import_jobs SET
			detected_encoding = $2, detected_delimiter = $3, status = $4, mapping = $5, overrides = $6,
			total_rows = $7, imported_rows = $8, updated_rows = $9, skipped_rows = $10, error_rows = $11,
			error_message = $12, started_at = $13, finished_at = $14
		WHERE id = $1 AND status NOT IN ('completed', 'partial', 'failed')`,
		job.ID, string(job.DetectedEncoding), job.DetectedDelimiter, string(job.Status), mapping, overrides,
		job.TotalRows, job.ImportedRows, job.UpdatedRows, job.SkippedRows, job.ErrorRows,
		job.ErrorMessage, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update import job: %w", Classify(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = l.pool.QueryRow(ctx, `SELECT status FROM import_jobs WHERE id::text = $1`, job.ID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("read import job status: %w", Classify(err))
	}
	return core.ErrJobTerminal
}

func (l *JobLog) AppendRowResult(ctx context.Context, r core.ImportRowResult) error {
	var created, columns []byte
	var err error
	if len(r.CreatedIDs) > 0 {
		if created, err = json.Marshal(r.CreatedIDs); err != nil {
			return fmt.Errorf("marshal created ids: %w", err)
		}
	}
	if len(r.Columns) > 0 {
		if columns, err = json.Marshal(r.Columns); err != nil {
			return fmt.Errorf("marshal columns: %w", err)
		}
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO import_row_results
			(job_id, row_number, outcome, action, created_ids, error_message, columns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.JobID, r.RowNumber, string(r.Outcome), string(r.Action), created, r.ErrorMessage, columns,
	)
	if err != nil {
		return fmt.Errorf("insert row result: %w", Classify(err))
	}
	return nil
}

func (l *JobLog) GetJob(ctx context.Context, id string) (*core.ImportJob, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+jobSelect+` FROM import_jobs WHERE id::text = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", Classify(err))
	}
	job, err := pgx.CollectExactlyOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import job: %w", Classify(err))
	}
	return job, nil
}

func (l *JobLog) ListJobs(ctx context.Context, f core.JobFilter) ([]*core.ImportJob, error) {
	var (
		where []string
		args  []any
	)
	if f.ImportType != "" {
		args = append(args, string(f.ImportType))
		where = append(where, fmt.Sprintf("import_type = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + jobSelect + ` FROM import_jobs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY created_at DESC, id"
	sql += pageClause(&args, f.Limit, f.Offset)

	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", Classify(err))
	}
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", Classify(err))
	}
	return jobs, nil
}

func (l *JobLog) ListRowResults(ctx context.Context, jobID string, f core.RowResultFilter) ([]core.ImportRowResult, error) {
	if _, err := l.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	args := []any{jobID}
	sql := `SELECT job_id::text, row_number, outcome, action, created_ids, error_message, columns
		FROM import_row_results WHERE job_id::text = $1`
	if f.Outcome != "" {
		args = append(args, string(f.Outcome))
		sql += fmt.Sprintf(" AND outcome = $%d", len(args))
	}
	sql += " ORDER BY row_number, id"
	sql += pageClause(&args, f.Limit, f.Offset)

	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list row results: %w", Classify(err))
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRowResult, error) {
		var (
			r                core.ImportRowResult
			outcome, action  string
			created, columns []byte
		)
		if err := row.Scan(&r.JobID, &r.RowNumber, &outcome, &action, &created, &r.ErrorMessage, &columns); err != nil {
			return r, err
		}
		r.Outcome = core.Outcome(outcome)
		r.Action = core.DecisionAction(action)
		if len(created) > 0 {
			if err := json.Unmarshal(created, &r.CreatedIDs); err != nil {
				return r, fmt.Errorf("decode created ids: %w", err)
			}
		}
		if len(columns) > 0 {
			if err := json.Unmarshal(columns, &r.Columns); err != nil {
				return r, fmt.Errorf("decode columns: %w", err)
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list row results: %w", Classify(err))
	}
	return results, nil
}

func pageClause(args *[]any, limit, offset int) string {
	var s string
	if limit > 0 {
		*args = append(*args, limit)
		s += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		s += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return s
}

func marshalJobJSON(job *core.ImportJob) (mapping, overrides []byte, err error) {
	if job.Mapping != nil {
		if mapping, err = json.Marshal(job.Mapping); err != nil {
			return nil, nil, fmt.Errorf("marshal mapping: %w", err)
		}
	}
	if job.Overrides != nil {
		if overrides, err = json.Marshal(job.Overrides); err != nil {
			return nil, nil, fmt.Errorf("marshal overrides: %w", err)
		}
	}
	return mapping, overrides, nil
}

func scanJob(row pgx.CollectableRow) (*core.ImportJob, error) {
	var (
		j                               core.ImportJob
		id, importType, encoding, state string
		mapping, overrides              []byte
		startedAt, finishedAt           *time.Time
	)
	err := row.Scan(
		&id, &importType, &j.SourceFileName, &encoding, &j.DetectedDelimiter, &state,
		&j.UpdateOnDuplicate, &mapping, &overrides, &j.CreatedBy,
		&j.TotalRows, &j.ImportedRows, &j.UpdatedRows, &j.SkippedRows, &j.ErrorRows,
		&j.ErrorMessage, &j.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ID = id
	j.ImportType = core.ImportType(importType)
	j.DetectedEncoding = core.Encoding(encoding)
	j.Status = core.JobStatus(state)
	j.StartedAt, j.FinishedAt = startedAt, finishedAt

	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &j.Mapping); err != nil {
			return nil, fmt.Errorf("decode mapping: %w", err)
		}
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &j.Overrides); err != nil {
			return nil, fmt.Errorf("decode overrides: %w", err)
		}
	}
	return &j, nil
}
