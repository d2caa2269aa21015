package engine

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lims/internal/db"
)

func deptScope(deleg string) Scope {
	return Scope{
		Table:            "departamentos",
		CodeColumn:       "dep_codigo",
		DelegationColumn: "dep_delegacion",
		Delegation:       deleg,
	}
}

func TestCodeGenerator_PostgresLocksScopeBeforeScan(t *testing.T) {
	mdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mdb.Close()

	pg, err := db.DialectFor(db.Postgres)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`)).
		WithArgs("departamentos|01|").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(CAST("dep_codigo" AS BIGINT)), 0) FROM "departamentos" WHERE "dep_delegacion" = $1`)).
		WithArgs("01").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(41)))
	mock.ExpectCommit()

	var got int64
	err = db.WithTx(context.Background(), mdb, func(tx *sql.Tx) error {
		var err error
		got, err = CodeGenerator{}.Next(context.Background(), NewStore(tx, pg), deptScope("01"), true)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeGenerator_SeriesScope(t *testing.T) {
	mdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mdb.Close()

	pg, _ := db.DialectFor(db.Postgres)
	sc := Scope{Table: "lineas", CodeColumn: "lin_codigo", SeriesColumn: "lin_serie", Series: "B"}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(CAST("lin_codigo" AS BIGINT)), 0) FROM "lineas" WHERE "lin_serie" = $1`)).
		WithArgs("B").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(0)))

	got, err := CodeGenerator{}.Next(context.Background(), NewStore(mdb, pg), sc, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeGenerator_LockOutsideTransaction(t *testing.T) {
	mdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mdb.Close()

	pg, _ := db.DialectFor(db.Postgres)
	_, err = CodeGenerator{}.Next(context.Background(), NewStore(mdb, pg), deptScope("01"), true)
	assert.ErrorIs(t, err, db.ErrNoTransaction)
	// ни одного запроса не ушло
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCodeGenerator_SQLiteMaxPlusOne(t *testing.T) {
	tc := openTenant(t, deptResource())
	ctx := context.Background()
	gen := CodeGenerator{}

	next := func(deleg string) int64 {
		var n int64
		require.NoError(t, db.WithTx(ctx, tc.DB, func(tx *sql.Tx) error {
			var err error
			n, err = gen.Next(ctx, NewStore(tx, tc.Dialect), deptScope(deleg), true)
			return err
		}))
		return n
	}

	assert.Equal(t, int64(1), next("01"))

	exec(t, tc, `INSERT INTO departamentos (dep_delegacion, dep_codigo, dep_nombre) VALUES (?, ?, ?)`, "01", 7, "A")
	exec(t, tc, `INSERT INTO departamentos (dep_delegacion, dep_codigo, dep_nombre) VALUES (?, ?, ?)`, "02", 30, "B")

	assert.Equal(t, int64(8), next("01"))
	assert.Equal(t, int64(31), next("02"))
	assert.Equal(t, int64(1), next("03"))
}
