package mssql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bietl/internal/schema"
)

var overview = schema.Table{
	Name: "ph_overview",
	Columns: []schema.Column{
		{Name: "data", Type: schema.Date},
		{Name: "pageviews", Type: schema.Int},
	},
	Mode: schema.Snapshot,
}

var deals = schema.Table{
	Name: "rd_crm_sdr_deals",
	Columns: []schema.Column{
		{Name: "id", Type: schema.Text},
		{Name: "name", Type: schema.Text},
	},
	PrimaryKey: []string{"id"},
	Mode:       schema.Upsert,
}

func newMockRepo(t *testing.T, batchSize int) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newWithDB(db, Config{BatchSize: batchSize}), mock
}

func day(s string) time.Time {
	tm, _ := time.Parse("2006-01-02", s)
	return tm
}

// TestReplaceAll_BulkCopy deletes and bulk-copies typed rows in one tx.
func TestReplaceAll_BulkCopy(t *testing.T) {
	r, mock := newMockRepo(t, 0)

	copyIn := mssql.CopyIn("ph_overview", mssql.BulkOptions{}, "data", "pageviews")

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM [ph_overview]").WillReturnResult(sqlmock.NewResult(0, 7))
	prep := mock.ExpectPrepare(copyIn)
	prep.ExpectExec().WithArgs(day("2024-01-01"), int64(10)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs(day("2024-01-02"), nil).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := r.ReplaceAll(context.Background(), overview, [][]any{
		{"2024-01-01", int64(10)},
		{"2024-01-02", nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestReplaceAll_RollsBackOnBulkError keeps the previous snapshot.
func TestReplaceAll_RollsBackOnBulkError(t *testing.T) {
	r, mock := newMockRepo(t, 0)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM [ph_overview]").WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectPrepare(mssql.CopyIn("ph_overview", mssql.BulkOptions{}, "data", "pageviews")).
		WillReturnError(errors.New("bulk unavailable"))
	mock.ExpectRollback()

	_, err := r.ReplaceAll(context.Background(), overview, [][]any{{"2024-01-01", int64(1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk unavailable")
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestUpsert_ChunkedMerge issues one MERGE per chunk inside one tx.
func TestUpsert_ChunkedMerge(t *testing.T) {
	r, mock := newMockRepo(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec(mergeSQL(deals, 2)).
		WithArgs("d1", "a", "d2", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(mergeSQL(deals, 1)).
		WithArgs("d3", "c").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := r.Upsert(context.Background(), deals, [][]any{
		{"d1", "a"},
		{"d2", "b"},
		{"d3", "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTable_IssuesGuardedCreate(t *testing.T) {
	r, mock := newMockRepo(t, 0)

	mock.ExpectExec("IF OBJECT_ID(N'[ph_overview]', N'U') IS NULL BEGIN CREATE TABLE [ph_overview] ( [data] DATE, [pageviews] BIGINT ); END;").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.EnsureTable(context.Background(), overview))
	require.NoError(t, mock.ExpectationsWereMet())
}
