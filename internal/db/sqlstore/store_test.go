package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickmessing/firemodel/internal/db"
)

const (
	selectValues = `SELECT path, value FROM "firemodel_nodes" WHERE path = $1 OR path LIKE $2 ESCAPE '\'`
	selectPaths  = `SELECT path FROM "firemodel_nodes" WHERE path = $1 OR path LIKE $2 ESCAPE '\'`
	upsert       = `INSERT INTO "firemodel_nodes" (path, value) VALUES ($1, $2) ON CONFLICT (path) DO UPDATE SET value = excluded.value`
)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	cfg := DefaultConfig()
	cfg.Dialect = dialect
	cfg.Retry = RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}
	return New(conn, cfg, nil), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "firemodel_nodes" (path TEXT PRIMARY KEY, value TEXT NOT NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRead(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(selectValues)).
		WithArgs("people", "people/%").
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).
			AddRow("people/a/name", `"Ann"`).
			AddRow("people/a/age", `30`).
			AddRow("people/b/name", `"Bob"`))

	v, err := store.Read(context.Background(), "people")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"a": map[string]interface{}{"name": "Ann", "age": float64(30)},
		"b": map[string]interface{}{"name": "Bob"},
	}, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadEscapesLikePattern(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(selectValues)).
		WithArgs("odd_key%", `odd\_key\%/%`).
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}))

	v, err := store.Read(context.Background(), "odd_key%")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRoot(t *testing.T) {
	store, mock := newMockStore(t, SQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT path, value FROM "firemodel_nodes"`)).
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).AddRow("a/b", `true`))

	v, err := store.Read(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": map[string]interface{}{"b": true}}, v)
}

func TestReadCorruptRow(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta(selectValues)).
		WillReturnRows(sqlmock.NewRows([]string{"path", "value"}).AddRow("x", `{not json`))

	_, err := store.Read(context.Background(), "x")
	assert.ErrorIs(t, err, db.ErrInvalidValue)
}

func TestWrite(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
		WithArgs("people/a", "people/a/%").
		WillReturnRows(sqlmock.NewRows([]string{"path"}).AddRow("people/a/age").AddRow("people/a/name"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "firemodel_nodes" WHERE path IN ($1, $2)`)).
		WithArgs("people", "people/a/age").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(upsert)).
		WithArgs("people/a/name", `"Ann"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Write(context.Background(), []db.Write{
		{Path: "people/a", Value: map[string]interface{}{"name": "Ann"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteSQLitePlaceholders(t *testing.T) {
	store, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT path FROM "firemodel_nodes" WHERE path = ? OR path LIKE ? ESCAPE '\'`)).
		WithArgs("a/b", "a/b/%").
		WillReturnRows(sqlmock.NewRows([]string{"path"}))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "firemodel_nodes" WHERE path IN (?)`)).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "firemodel_nodes" (path, value) VALUES (?, ?)`)).
		WithArgs("a/b", `1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), []db.Write{{Path: "a/b", Value: float64(1)}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteDeleteOnly(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
		WithArgs("a", "a/%").
		WillReturnRows(sqlmock.NewRows([]string{"path"}).AddRow("a/x"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "firemodel_nodes" WHERE path IN ($1)`)).
		WithArgs("a/x").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), []db.Write{{Path: "a"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRetriesConflicts(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
		WillReturnRows(sqlmock.NewRows([]string{"path"}))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "firemodel_nodes"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(upsert)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Write(context.Background(), []db.Write{{Path: "a/b", Value: "x"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteGivesUpAfterMaxRetries(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
			WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()
	}

	err := store.Write(context.Background(), []db.Write{{Path: "a", Value: "x"}})
	require.Error(t, err)
	assert.True(t, db.IsConflict(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteFailsFastOnOtherErrors(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectPaths)).
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	err := store.Write(context.Background(), []db.Write{{Path: "a", Value: "x"}})
	require.Error(t, err)
	assert.False(t, db.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteCancelledContext(t *testing.T) {
	store, _ := newMockStore(t, Postgres)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Write(ctx, []db.Write{{Path: "a", Value: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
		down     bool
	}{
		{name: "nil", err: nil},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, conflict: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, conflict: true},
		{name: "connection", err: &pgconn.PgError{Code: "08006"}, down: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, conflict: true},
		{name: "sqlite locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, conflict: true},
		{name: "sqlite cant open", err: sqlite3.Error{Code: sqlite3.ErrCantOpen}, down: true},
		{name: "conn done", err: sql.ErrConnDone, down: true},
		{name: "message", err: errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), conflict: true},
		{name: "other", err: errors.New("syntax error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertDBError(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.conflict, db.IsConflict(got))
			assert.Equal(t, tt.down, db.IsUnavailable(got))
		})
	}
}

func TestDialect(t *testing.T) {
	d, err := ParseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "pgx", d.DriverName())
	assert.Equal(t, "$1, $2, $3", d.placeholders(1, 3))

	d, err = ParseDialect("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	assert.Equal(t, "sqlite3", d.DriverName())
	assert.Equal(t, "?, ?", d.placeholders(1, 2))
	assert.Equal(t, "sqlite", d.String())

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
