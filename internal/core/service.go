package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easyvol/csvimport/internal/logging"
)

// Default limits, used when Options leaves a value at zero.
const (
	DefaultMaxFileSize   = 20 << 20
	DefaultMaxRows       = 10000
	DefaultPreviewRows   = 10
	DefaultReadTimeout   = 30 * time.Second
	DefaultProgressEvery = 50
)

// Options configures a Service.
type Options struct {
	MaxFileSize   int64
	MaxRows       int
	PreviewRows   int
	RowTimeout    time.Duration
	ReadTimeout   time.Duration
	ProgressEvery int

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.PreviewRows <= 0 {
		o.PreviewRows = DefaultPreviewRows
	}
	if o.RowTimeout <= 0 {
		o.RowTimeout = DefaultRowTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Service orchestrates preview and import runs.
type Service struct {
	store  Store
	log    JobLog
	locker JobLocker
	opts   Options

	mu     sync.RWMutex
	active map[string]*activeJob
	wg     sync.WaitGroup
}

type activeJob struct {
	mu     sync.Mutex
	job    *ImportJob
	cancel context.CancelFunc
}

func (a *activeJob) snapshot() *ImportJob {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job.Clone()
}

// NewService creates a Service. A nil locker becomes a LocalLocker.
func NewService(store Store, log JobLog, locker JobLocker, opts Options) *Service {
	if locker == nil {
		locker = NewLocalLocker(DefaultLockWait)
	}
	return &Service{
		store:  store,
		log:    log,
		locker: locker,
		opts:   opts.withDefaults(),
		active: make(map[string]*activeJob),
	}
}

// RunRequest describes one import run.
type RunRequest struct {
	FileName          string
	Data              io.Reader
	ImportType        ImportType
	Overrides         map[string]string
	UpdateOnDuplicate bool
	CreatedBy         string // Empty falls back to OperatorFromContext
}

// RunImport processes the whole file and returns the terminal job.
//
// File-level problems (unreadable file, missing mapping, row limit, busy
// lock) return the failed job together with the typed error. A job aborted
// by a storage failure or cancellation also returns its error. A job whose
// rows all failed returns a failed job and a nil error.
func (s *Service) RunImport(ctx context.Context, req RunRequest) (*ImportJob, error) {
	def, err := Lookup(req.ImportType)
	if err != nil {
		return nil, err
	}

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = OperatorFromContext(ctx)
	}

	job := &ImportJob{
		ID:                s.opts.NewID(),
		ImportType:        def.Type,
		SourceFileName:    req.FileName,
		Status:            StatusPending,
		UpdateOnDuplicate: req.UpdateOnDuplicate,
		CreatedBy:         createdBy,
		CreatedAt:         s.opts.Now().UTC(),
	}
	if len(req.Overrides) > 0 {
		job.Overrides = maps.Clone(req.Overrides)
	}
	if err := s.log.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.wg.Add(1)
	defer s.wg.Done()

	logger := logging.WithJob(ctx, job.ID, string(job.ImportType))
	logger.Info("import job created", "file", req.FileName, "update_on_duplicate", req.UpdateOnDuplicate)

	data, err := readSource(ctx, req.Data, s.opts.MaxFileSize, s.opts.ReadTimeout)
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}

	det, err := Detect(data)
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	job.DetectedEncoding = det.Encoding
	job.DetectedDelimiter = det.DelimiterString()

	parser := NewRowParser(data, det, ParserOptions{MaxRows: s.opts.MaxRows})
	headers, err := parser.Header()
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	mapping, err := ResolveMapping(headers, def, req.Overrides)
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	job.Mapping = mapping

	if err := s.transition(ctx, logger, job, StatusPreviewed); err != nil {
		return job.Clone(), err
	}

	if err := mapping.RequireFields(def); err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	total, err := parser.Count()
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	job.TotalRows = total

	unlock, err := s.locker.Lock(ctx, def.Type)
	if err != nil {
		return s.failJob(ctx, logger, job, err)
	}
	defer unlock()

	started := s.opts.Now().UTC()
	job.StartedAt = &started
	if err := s.transition(ctx, logger, job, StatusRunning); err != nil {
		return job.Clone(), err
	}

	return s.run(ctx, logger, def, parser, job)
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, def *ImportDefinition, parser *RowParser, job *ImportJob) (*ImportJob, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := &activeJob{job: job, cancel: cancel}
	s.mu.Lock()
	s.active[job.ID] = a
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
	}()

	tr := NewTransformer(def, job.Mapping, TransformOptions{
		Now:           s.opts.Now,
		CreatedBy:     job.CreatedBy,
		DeferRequired: job.UpdateOnDuplicate,
	})
	im := NewImporter(s.store, def, ImporterOptions{RowTimeout: s.opts.RowTimeout, NewID: s.opts.NewID})
	logCtx := context.WithoutCancel(ctx)

	var abort error
	processed := 0
	it := parser.Rows()
	for it.Next() {
		row := it.Row()
		if abort == nil && runCtx.Err() != nil {
			abort = fmt.Errorf("%w: %v", ErrCancelled, runCtx.Err())
			logger.Warn("import cancelled", "at_row", row.Number)
		}

		var (
			res     ImportRowResult
			updated bool
		)
		if abort != nil {
			res = ImportRowResult{
				RowNumber:    row.Number,
				Outcome:      OutcomeFailed,
				ErrorMessage: "not processed: " + abort.Error(),
			}
		} else {
			out := s.processRow(runCtx, logger, tr, im, row, job.UpdateOnDuplicate)
			res, updated = out.Result, out.Updated
			if out.Fatal != nil {
				abort = out.Fatal
				logger.Error("storage unavailable, aborting job", "row", row.Number, "error", out.Fatal)
			}
		}
		res.JobID = job.ID

		a.mu.Lock()
		switch res.Outcome {
		case OutcomeImported:
			job.ImportedRows++
			if updated {
				job.UpdatedRows++
			}
		case OutcomeSkipped:
			job.SkippedRows++
		default:
			job.ErrorRows++
		}
		a.mu.Unlock()

		if err := s.log.AppendRowResult(logCtx, res); err != nil {
			logger.Error("record row result", "row", row.Number, "error", err)
			if abort == nil {
				abort = fmt.Errorf("%w: record row result: %v", ErrStorageUnavailable, err)
			}
		}

		processed++
		if processed%s.opts.ProgressEvery == 0 {
			if err := s.log.UpdateJob(logCtx, a.snapshot()); err != nil {
				logger.Warn("persist progress", "error", err)
			}
		}
	}
	if err := it.Err(); err != nil && abort == nil {
		abort = err
	}

	a.mu.Lock()
	status := FinalStatus(job.ImportedRows, job.ErrorRows, abort != nil)
	if abort != nil {
		job.ErrorMessage = abort.Error()
	}
	finished := s.opts.Now().UTC()
	job.FinishedAt = &finished
	a.mu.Unlock()

	if err := s.transition(logCtx, logger, job, status); err != nil {
		return job.Clone(), err
	}

	logger.Info("import finished",
		"status", job.Status,
		"total", job.TotalRows,
		"imported", job.ImportedRows,
		"updated", job.UpdatedRows,
		"skipped", job.SkippedRows,
		"failed", job.ErrorRows,
	)
	return job.Clone(), abort
}

func (s *Service) processRow(ctx context.Context, logger *slog.Logger, tr *Transformer, im *Importer, row RawRow, update bool) RowOutcome {
	bundle, err := tr.Transform(row)
	if err != nil {
		res := ImportRowResult{RowNumber: row.Number, Outcome: OutcomeFailed, ErrorMessage: err.Error()}
		var te *TransformError
		if errors.As(err, &te) {
			res.Columns = te.Columns()
		}
		logger.Debug("row rejected", "row", row.Number, "error", err)
		return RowOutcome{Result: res}
	}

	out := im.ImportRow(ctx, bundle, update)
	if out.Result.Outcome == OutcomeFailed && out.Fatal == nil {
		logger.Debug("row failed", "row", row.Number, "error", out.Result.ErrorMessage)
	}
	return out
}

// transition moves job to status and persists it.
func (s *Service) transition(ctx context.Context, logger *slog.Logger, job *ImportJob, to JobStatus) error {
	s.mu.RLock()
	a := s.active[job.ID]
	s.mu.RUnlock()
	if a != nil {
		a.mu.Lock()
	}
	from := job.Status
	err := job.Transition(to)
	var snap *ImportJob
	if err == nil {
		snap = job.Clone()
	}
	if a != nil {
		a.mu.Unlock()
	}
	if err != nil {
		return err
	}

	logger.Info("job state changed", "from", from, "to", to)
	if err := s.log.UpdateJob(context.WithoutCancel(ctx), snap); err != nil {
		logger.Error("persist job state", "status", to, "error", err)
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	return nil
}

// failJob ends a job that never reached running.
func (s *Service) failJob(ctx context.Context, logger *slog.Logger, job *ImportJob, cause error) (*ImportJob, error) {
	job.ErrorMessage = cause.Error()
	finished := s.opts.Now().UTC()
	job.FinishedAt = &finished
	logger.Warn("import rejected", "error", cause, "code", MapError(cause).Code)
	if err := s.transition(ctx, logger, job, StatusFailed); err != nil {
		return job.Clone(), errors.Join(cause, err)
	}
	return job.Clone(), cause
}

// GetJobStatus returns live counters for a running job, or the stored job.
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*ImportJob, error) {
	s.mu.RLock()
	a, ok := s.active[jobID]
	s.mu.RUnlock()
	if ok {
		return a.snapshot(), nil
	}
	return s.log.GetJob(ctx, jobID)
}

// ListJobs returns stored jobs matching filter.
func (s *Service) ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error) {
	return s.log.ListJobs(ctx, filter)
}

// RowResults returns the per-row results of a job.
func (s *Service) RowResults(ctx context.Context, jobID string, filter RowResultFilter) ([]ImportRowResult, error) {
	if _, err := s.GetJobStatus(ctx, jobID); err != nil {
		return nil, err
	}
	return s.log.ListRowResults(ctx, jobID, filter)
}

// FailedRowsHeader is the header of ExportFailedRows output.
var FailedRowsHeader = []string{"riga", "colonne", "errore"}

// ExportFailedRows writes the failed rows of a job as semicolon separated CSV.
func (s *Service) ExportFailedRows(ctx context.Context, jobID string, w io.Writer) error {
	rows, err := s.RowResults(ctx, jobID, RowResultFilter{Outcome: OutcomeFailed})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(FailedRowsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{strconv.Itoa(r.RowNumber), strings.Join(r.Columns, ", "), r.ErrorMessage}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Cancel stops a running job before its next row.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	s.mu.RLock()
	a, ok := s.active[jobID]
	s.mu.RUnlock()
	if ok {
		a.cancel()
		return nil
	}

	job, err := s.log.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}
	return fmt.Errorf("job %s is not running in this process: %w", jobID, ErrJobNotFound)
}

// WaitForJobs blocks until every in-flight RunImport returns or ctx ends.
func (s *Service) WaitForJobs(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveJobs returns the number of jobs currently running.
func (s *Service) ActiveJobs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// readSource reads at most max bytes from r within timeout.
func readSource(ctx context.Context, r io.Reader, max int64, timeout time.Duration) ([]byte, error) {
	if r == nil {
		return nil, &UnreadableFileError{Reason: "empty file"}
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(r, max+1))
		ch <- result{data, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("read file: %w", res.err)
		}
		if int64(len(res.data)) > max {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, max)
		}
		return res.data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrReadTimeout, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}
