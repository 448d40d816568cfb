package core

// importer.go persists one EntityBundle per store transaction.
//
// A row either commits completely (core record plus every child group) or
// leaves no trace. Storage failures wrapping ErrStorageUnavailable are
// reported as fatal so the caller can abort the job; every other error only
// fails the row.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tx is one row transaction. Values maps destination columns to typed
// values (string, int64, bool, time.Time, decimal.Decimal).
type Tx interface {
	KeyFinder
	Insert(ctx context.Context, table string, values map[string]any) error
	Update(ctx context.Context, table, id string, values map[string]any) error
	DeleteChildren(ctx context.Context, table, parentColumn, parentID string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens row transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// IDColumn is the primary key column of every destination table.
const IDColumn = "id"

// DefaultRowTimeout bounds a single row transaction.
const DefaultRowTimeout = 10 * time.Second

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	RowTimeout time.Duration
	NewID      func() string
}

// RowOutcome is the result of one row. Fatal is set when the failure must
// abort the job.
type RowOutcome struct {
	Result  ImportRowResult
	Updated bool
	Fatal   error
}

// Importer writes bundles of one import type.
type Importer struct {
	store    Store
	def      *ImportDefinition
	resolver *DuplicateResolver
	opts     ImporterOptions
}

// NewImporter creates an importer for def backed by store.
func NewImporter(store Store, def *ImportDefinition, opts ImporterOptions) *Importer {
	if opts.RowTimeout <= 0 {
		opts.RowTimeout = DefaultRowTimeout
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Importer{
		store:    store,
		def:      def,
		resolver: NewDuplicateResolver(def),
		opts:     opts,
	}
}

// ImportRow resolves duplicates and writes b in its own transaction.
// The row runs to completion even if ctx is cancelled; only RowTimeout
// bounds it.
func (im *Importer) ImportRow(ctx context.Context, b *EntityBundle, update bool) RowOutcome {
	rowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), im.opts.RowTimeout)
	defer cancel()

	result := ImportRowResult{RowNumber: b.RowNumber}

	tx, err := im.store.Begin(rowCtx)
	if err != nil {
		return im.failed(result, fmt.Errorf("begin: %w", err))
	}

	decision, created, err := im.write(rowCtx, tx, b, update)
	result.Action = decision.Action
	if err != nil {
		_ = tx.Rollback(context.WithoutCancel(rowCtx))
		return im.failed(result, err)
	}

	if decision.Action == ActionConflict {
		_ = tx.Rollback(rowCtx)
		result.Outcome = OutcomeSkipped
		result.ErrorMessage = decision.Reason
		return RowOutcome{Result: result}
	}

	if err := tx.Commit(rowCtx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(rowCtx))
		return im.failed(result, fmt.Errorf("commit: %w", err))
	}

	result.Outcome = OutcomeImported
	result.CreatedIDs = created
	return RowOutcome{Result: result, Updated: decision.Action == ActionUpdate}
}

func (im *Importer) write(ctx context.Context, tx Tx, b *EntityBundle, update bool) (DuplicateDecision, map[string][]string, error) {
	decision, err := im.resolver.Resolve(ctx, tx, b, update)
	if err != nil {
		return decision, nil, err
	}

	created := map[string][]string{}
	var parentID string

	switch decision.Action {
	case ActionConflict:
		return decision, nil, nil

	case ActionInsert:
		if len(b.Deferred) > 0 {
			return decision, nil, &TransformError{RowNumber: b.RowNumber, Fields: b.Deferred}
		}
		parentID = im.opts.NewID()
		values := b.Core.InsertValues()
		values[IDColumn] = parentID
		if err := tx.Insert(ctx, b.Core.Table, values); err != nil {
			return decision, nil, fmt.Errorf("insert %s: %w", b.Core.Table, err)
		}
		created[b.Core.Table] = append(created[b.Core.Table], parentID)

	case ActionUpdate:
		parentID = decision.ExistingID
		if len(b.Core.Values) > 0 {
			if err := tx.Update(ctx, b.Core.Table, parentID, b.Core.Values); err != nil {
				return decision, nil, fmt.Errorf("update %s: %w", b.Core.Table, err)
			}
		}
	}

	for _, g := range im.def.Groups {
		records := b.Children(g.Name)
		if len(records) == 0 {
			continue
		}
		if decision.Action == ActionUpdate {
			if err := tx.DeleteChildren(ctx, g.Table, g.ParentColumn, parentID); err != nil {
				return decision, nil, fmt.Errorf("replace %s: %w", g.Table, err)
			}
		}
		for _, rec := range records {
			id := im.opts.NewID()
			values := rec.InsertValues()
			values[IDColumn] = id
			values[g.ParentColumn] = parentID
			if err := tx.Insert(ctx, g.Table, values); err != nil {
				return decision, nil, fmt.Errorf("insert %s: %w", g.Table, err)
			}
			created[g.Table] = append(created[g.Table], id)
		}
	}

	return decision, created, nil
}

func (im *Importer) failed(result ImportRowResult, err error) RowOutcome {
	result.Outcome = OutcomeFailed
	result.ErrorMessage = err.Error()
	var te *TransformError
	if errors.As(err, &te) {
		result.Columns = te.Columns()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		result.ErrorMessage = fmt.Sprintf("row timed out after %s: %v", im.opts.RowTimeout, err)
	}
	out := RowOutcome{Result: result}
	if IsFatal(err) {
		out.Fatal = err
	}
	return out
}
