package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyvol/csvimport/internal/core"
)

// ---------------------------------------------------------------------------
// Classify
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"invalid date", &pgconn.PgError{Code: "22007"}, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"query canceled", &pgconn.PgError{Code: "57014"}, false},
		{"wrapped pg error", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "08003"}), true},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"conn closed text", errors.New("conn closed"), true},
		{"deadline", context.DeadlineExceeded, false},
		{"already fatal", core.ErrStorageUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.fatal, errors.Is(got, core.ErrStorageUnavailable))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestIsFatalCode(t *testing.T) {
	assert.True(t, IsFatalCode("08001"))
	assert.True(t, IsFatalCode("53100"))
	assert.True(t, IsFatalCode("57P03"))
	assert.False(t, IsFatalCode("57014"))
	assert.False(t, IsFatalCode("23503"))
}

// ---------------------------------------------------------------------------
// PgValue
// ---------------------------------------------------------------------------

func TestPgValue(t *testing.T) {
	day := time.Date(1985, 12, 10, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, PgValue(nil))
	assert.Equal(t, pgtype.Text{String: "Rossi", Valid: true}, PgValue("Rossi"))
	assert.Equal(t, pgtype.Bool{Bool: true, Valid: true}, PgValue(true))
	assert.Equal(t, pgtype.Int8{Int64: 42, Valid: true}, PgValue(int64(42)))
	assert.Equal(t, pgtype.Date{Time: day, Valid: true}, PgValue(day))

	n, ok := PgValue(decimal.RequireFromString("1234.50")).(pgtype.Numeric)
	require.True(t, ok)
	assert.True(t, n.Valid)
	f, err := n.Float64Value()
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, f.Float64, 0.0001)
}

func TestIdent(t *testing.T) {
	assert.Equal(t, `"members"`, ident("members"))
	assert.Equal(t, `"bad""name"`, ident(`bad"name`))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "csvimport:vehicle", lockKey(core.TypeVehicle))
}

// ---------------------------------------------------------------------------
// Integration (requires TEST_DATABASE_URL with migrations applied)
// ---------------------------------------------------------------------------

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestStoreRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := New(pool)

	plate := "ZZ" + uuid.NewString()[:6]
	id := uuid.NewString()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Insert(ctx, "vehicles", map[string]any{
		"id": id, "name": "Test", "license_plate": plate, "vehicle_type": "veicolo", "status": "operativo",
	}))
	require.NoError(t, tx.Commit(ctx))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM vehicles WHERE id = $1`, id) })

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	ids, err := tx.FindByKey(ctx, "vehicles", "license_plate", core.NormalizeKey(" "+plate+" "))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, tx.Update(ctx, "vehicles", id, map[string]any{"brand": "Fiat"}))
}

func TestJobLogRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	log := NewJobLog(pool)

	job := &core.ImportJob{
		ID:             uuid.NewString(),
		ImportType:     core.TypeVehicle,
		SourceFileName: "mezzi.csv",
		Status:         core.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, log.CreateJob(ctx, job))
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM import_jobs WHERE id = $1`, job.ID) })

	require.NoError(t, log.AppendRowResult(ctx, core.ImportRowResult{
		JobID: job.ID, RowNumber: 2, Outcome: core.OutcomeFailed, ErrorMessage: "bad", Columns: []string{"targa"},
	}))

	job.Status = core.StatusFailed
	require.NoError(t, log.UpdateJob(ctx, job))
	assert.ErrorIs(t, log.UpdateJob(ctx, job), core.ErrJobTerminal)

	got, err := log.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)

	rows, err := log.ListRowResults(ctx, job.ID, core.RowResultFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"targa"}, rows[0].Columns)

	_, err = log.GetJob(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}
