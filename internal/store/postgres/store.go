// Package postgres implements core.Store, core.JobLog and core.JobLocker
// on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/easyvol/csvimport/internal/core"
)

// Store runs row transactions on a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return Classify(s.pool.Ping(ctx))
}

// Begin opens a row transaction.
func (s *Store) Begin(ctx context.Context) (core.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return &rowTx{tx: tx}, nil
}

type rowTx struct {
	tx pgx.Tx
}

var _ core.Tx = (*rowTx)(nil)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (t *rowTx) FindByKey(ctx context.Context, table, column, key string) ([]string, error) {
	sql := fmt.Sprintf(
		`SELECT id::text FROM %s WHERE upper(regexp_replace(%s::text, '\s', '', 'g')) = $1 ORDER BY id`,
		ident(table), ident(column),
	)
	rows, err := t.tx.Query(ctx, sql, key)
	if err != nil {
		return nil, Classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, Classify(err)
	}
	return ids, nil
}

func (t *rowTx) Insert(ctx context.Context, table string, values map[string]any) error {
	cols := sortedColumns(values)
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = ident(c)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = PgValue(values[c])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident(table), strings.Join(names, ", "), strings.Join(params, ", "))
	_, err := t.tx.Exec(ctx, sql, args...)
	return Classify(err)
}

func (t *rowTx) Update(ctx context.Context, table, id string, values map[string]any) error {
	cols := sortedColumns(values)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	args = append(args, id)
	for _, c := range cols {
		if c == core.IDColumn {
			continue
		}
		args = append(args, PgValue(values[c]))
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(c), len(args)))
	}
	sets = append(sets, "updated_at = now()")
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", ident(table), strings.Join(sets, ", "))
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: record %s not found", table, id)
	}
	return nil
}

func (t *rowTx) DeleteChildren(ctx context.Context, table, parentColumn, parentID string) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", ident(table), ident(parentColumn))
	_, err := t.tx.Exec(ctx, sql, parentID)
	return Classify(err)
}

func (t *rowTx) Commit(ctx context.Context) error {
	return Classify(t.tx.Commit(ctx))
}

func (t *rowTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return Classify(err)
}

func sortedColumns(values map[string]any) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// PgValue converts a bundle value into its pgtype equivalent.
func PgValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return pgtype.Text{String: x, Valid: true}
	case bool:
		return pgtype.Bool{Bool: x, Valid: true}
	case int64:
		return pgtype.Int8{Int64: x, Valid: true}
	case int:
		return pgtype.Int8{Int64: int64(x), Valid: true}
	case time.Time:
		return pgtype.Date{Time: x, Valid: true}
	case decimal.Decimal:
		var n pgtype.Numeric
		if err := n.Scan(x.String()); err != nil {
			return pgtype.Numeric{Valid: false}
		}
		return n
	default:
		return v
	}
}

// Classify marks connection-level failures with core.ErrStorageUnavailable.
//
// Fatal: connect errors, broken connections, and SQLSTATE classes
// 08 (connection exception), 53 (insufficient resources) and 57P
// (operator intervention, e.g. admin shutdown). Constraint violations,
// bad data and context deadlines stay row-scoped.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrStorageUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if IsFatalCode(pgErr.Code) {
			return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"conn closed", "connection refused", "connection reset", "broken pipe", "closed pool"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
		}
	}
	return err
}

// IsFatalCode reports whether a SQLSTATE aborts the job.
func IsFatalCode(code string) bool {
	return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || strings.HasPrefix(code, "57P")
}
