package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{
		"":           DriverSQLite,
		"SQLite":     DriverSQLite,
		"sqlite3":    DriverSQLite,
		"pgx":        DriverPostgres,
		" postgres ": DriverPostgres,
		"postgresql": DriverPostgres,
	} {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDriver("mysql")
	assert.Error(t, err)
}

func TestSplitSQL(t *testing.T) {
	got := splitSQL("CREATE TABLE a (x INT);\n\n  CREATE INDEX b ON a(x);  ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT);", "CREATE INDEX b ON a(x);"}, got)
	assert.Equal(t, "CREATE TABLE a (", firstLine("\n  CREATE TABLE a (\n x INT)"))
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(context.Background(), DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestOpenAppliesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	conn := openMemory(t)
	require.NoError(t, Migrate(ctx, conn, DriverSQLite))

	for _, table := range []string{"exams", "questions", "attempts", "attempt_answers", "event_log"} {
		var n int
		require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n), table)
		assert.Zero(t, n, table)
	}
	assert.Error(t, Migrate(ctx, conn, Driver("oracle")))
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	conn := openMemory(t)
	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO exams (id,title,description,duration_minutes,access_code,status,created_at)
			VALUES ($1,'t','',0,'','draft',0)`, id)
		return err
	}

	require.NoError(t, WithTx(ctx, conn, nil, func(tx *sql.Tx) error { return insert(tx, "kept") }))

	boom := errors.New("boom")
	err := WithTx(ctx, conn, nil, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "dropped"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams`).Scan(&n))
	assert.Equal(t, 1, n)
}
