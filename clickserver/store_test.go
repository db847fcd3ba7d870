package clickserver

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for want := 1; want <= 3; want++ {
		n, err = s.Increment(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, _ = s.Get(ctx, "b")
	assert.Equal(t, 0, n, "counters are per client")

	require.NoError(t, s.Delete(ctx, "a"))
	n, _ = s.Get(ctx, "a")
	assert.Equal(t, 0, n)
}

func newMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS clicks").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s, mock
}

func TestSQLiteStoreGet(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta(`SELECT clicks FROM clicks WHERE client = ?`)

	mock.ExpectQuery(query).WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"clicks"}).AddRow(4))
	mock.ExpectQuery(query).WithArgs("c2").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(query).WithArgs("c3").WillReturnError(errors.New("disk on fire"))

	n, err := s.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.Get(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Get(context.Background(), "c3")
	assert.ErrorContains(t, err, "disk on fire")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreIncrement(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO clicks").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"clicks"}).AddRow(3))

	n, err := s.Increment(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM clicks WHERE client = ?`)).WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM clicks").WithArgs("c2").
		WillReturnError(errors.New("locked"))

	require.NoError(t, s.Delete(context.Background(), "c1"))
	assert.ErrorContains(t, s.Delete(context.Background(), "c2"), "delete clicks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLiteStoreMigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only"))
	_, err = NewSQLiteStore(db)
	assert.ErrorContains(t, err, "migrate")
}
