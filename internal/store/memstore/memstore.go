// Package memstore is an in-memory implementation of core.Store and
// core.JobLog. Transactions are serialized and copy-on-write, so a rolled
// back row leaves no trace. Faults can be injected per operation to
// exercise failure paths.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/easyvol/csvimport/internal/core"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpBegin  Op = "begin"
	OpFind   Op = "find"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpCommit Op = "commit"

	OpCreateJob    Op = "create_job"
	OpUpdateJob    Op = "update_job"
	OpAppendResult Op = "append_result"
)

// FaultFunc returns a non-nil error to make op on table fail.
type FaultFunc func(op Op, table string) error

type table struct {
	rows  map[string]map[string]any
	order []string
}

func (t *table) clone() *table {
	c := &table{rows: make(map[string]map[string]any, len(t.rows)), order: slices.Clone(t.order)}
	for id, row := range t.rows {
		c.rows[id] = maps.Clone(row)
	}
	return c
}

// Store holds tables and the job log in memory.
type Store struct {
	txLock chan struct{}

	mu     sync.RWMutex
	tables map[string]*table
	fault  FaultFunc

	jobs     map[string]*core.ImportJob
	jobOrder []string
	results  map[string][]core.ImportRowResult
}

// New creates an empty store.
func New() *Store {
	return &Store{
		txLock:  make(chan struct{}, 1),
		tables:  make(map[string]*table),
		jobs:    make(map[string]*core.ImportJob),
		results: make(map[string][]core.ImportRowResult),
	}
}

// SetFault installs f; nil clears it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Store) check(op Op, table string) error {
	s.mu.RLock()
	f := s.fault
	s.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f(op, table)
}

// Seed inserts a committed row and returns its id. A missing id is generated.
func (s *Store) Seed(tableName string, values map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(tableName)
	id, _ := values[core.IDColumn].(string)
	if id == "" {
		id = fmt.Sprintf("seed-%s-%d", tableName, len(t.order)+1)
	}
	row := maps.Clone(values)
	row[core.IDColumn] = id
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
	return id
}

// Rows returns copies of the committed rows of a table in insertion order.
func (s *Store) Rows(tableName string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, maps.Clone(t.rows[id]))
	}
	return out
}

// Count returns the number of committed rows in a table.
func (s *Store) Count(tableName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[tableName]; ok {
		return len(t.order)
	}
	return 0
}

// Get returns a committed row by id.
func (s *Store) Get(tableName, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil, false
	}
	row, ok := t.rows[id]
	return maps.Clone(row), ok
}

// table returns the named table, creating it. Callers hold s.mu.
func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]map[string]any)}
		s.tables[name] = t
	}
	return t
}

// Begin waits for the transaction slot and opens a transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	if err := s.check(OpBegin, ""); err != nil {
		return nil, err
	}
	select {
	case s.txLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &tx{s: s, dirty: make(map[string]*table)}, nil
}

type tx struct {
	s     *Store
	dirty map[string]*table
	done  bool
}

var _ core.Tx = (*tx)(nil)

// view returns the table as seen by the transaction.
func (t *tx) view(name string) *table {
	if d, ok := t.dirty[name]; ok {
		return d
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if base, ok := t.s.tables[name]; ok {
		return base
	}
	return &table{rows: map[string]map[string]any{}}
}

// writable returns a private copy of the table for this transaction.
func (t *tx) writable(name string) *table {
	if d, ok := t.dirty[name]; ok {
		return d
	}
	d := t.view(name).clone()
	t.dirty[name] = d
	return d
}

func (t *tx) active() error {
	if t.done {
		return fmt.Errorf("memstore: transaction already closed")
	}
	return nil
}

func (t *tx) FindByKey(ctx context.Context, tableName, column, key string) ([]string, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	if err := t.s.check(OpFind, tableName); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tb := t.view(tableName)
	var ids []string
	for _, id := range tb.order {
		v, ok := tb.rows[id][column]
		if !ok || v == nil {
			continue
		}
		if core.NormalizeKey(fmt.Sprint(v)) == key {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *tx) Insert(ctx context.Context, tableName string, values map[string]any) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.check(OpInsert, tableName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	id, _ := values[core.IDColumn].(string)
	if id == "" {
		return fmt.Errorf("memstore: insert into %s without id", tableName)
	}
	tb := t.writable(tableName)
	if _, exists := tb.rows[id]; exists {
		return fmt.Errorf("duplicate key value violates unique constraint %q", tableName+"_pkey")
	}
	tb.rows[id] = maps.Clone(values)
	tb.order = append(tb.order, id)
	return nil
}

func (t *tx) Update(ctx context.Context, tableName, id string, values map[string]any) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.check(OpUpdate, tableName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tb := t.writable(tableName)
	row, ok := tb.rows[id]
	if !ok {
		return fmt.Errorf("memstore: %s %s not found", tableName, id)
	}
	for k, v := range values {
		if k == core.IDColumn {
			continue
		}
		row[k] = v
	}
	return nil
}

func (t *tx) DeleteChildren(ctx context.Context, tableName, parentColumn, parentID string) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.check(OpDelete, tableName); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tb := t.writable(tableName)
	kept := tb.order[:0]
	for _, id := range tb.order {
		if tb.rows[id][parentColumn] == parentID {
			delete(tb.rows, id)
			continue
		}
		kept = append(kept, id)
	}
	tb.order = kept
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if err := t.active(); err != nil {
		return err
	}
	if err := t.s.check(OpCommit, ""); err != nil {
		t.release()
		return err
	}
	t.s.mu.Lock()
	for name, tb := range t.dirty {
		t.s.tables[name] = tb
	}
	t.s.mu.Unlock()
	t.release()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *tx) release() {
	if t.done {
		return
	}
	t.done = true
	t.dirty = nil
	<-t.s.txLock
}

// ---------------------------------------------------------------------------
// Job log
// ---------------------------------------------------------------------------

var _ core.JobLog = (*Store)(nil)

func (s *Store) CreateJob(ctx context.Context, job *core.ImportJob) error {
	if err := s.check(OpCreateJob, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("memstore: job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, job *core.ImportJob) error {
	if err := s.check(OpUpdateJob, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return core.ErrJobNotFound
	}
	if stored.Status.Terminal() {
		return core.ErrJobTerminal
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) AppendRowResult(ctx context.Context, result core.ImportRowResult) error {
	if err := s.check(OpAppendResult, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[result.JobID]; !ok {
		return core.ErrJobNotFound
	}
	s.results[result.JobID] = append(s.results[result.JobID], result)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *Store) ListRowResults(ctx context.Context, jobID string, filter core.RowResultFilter) ([]core.ImportRowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, core.ErrJobNotFound
	}
	var out []core.ImportRowResult
	for _, r := range s.results[jobID] {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	lo, hi := core.Page(len(out), filter.Offset, filter.Limit)
	return out[lo:hi], nil
}

func (s *Store) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.ImportJob
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if filter.Match(job) {
			out = append(out, job.Clone())
		}
	}
	lo, hi := core.Page(len(out), filter.Offset, filter.Limit)
	return out[lo:hi], nil
}
