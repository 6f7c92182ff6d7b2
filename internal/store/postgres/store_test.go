package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/gramlink/unfurler/internal/store"
)

func TestStoreGetReturnsLiveValue(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "kv_entries")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM kv_entries").
		WithArgs("cache:https://instagram.com/p/Abc123").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"blocks":[]}`)))

	got, err := s.Get(context.Background(), "cache:https://instagram.com/p/Abc123")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"blocks":[]}`), got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetMissReportsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "kv_entries")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM kv_entries").
		WithArgs("cache:missing").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	_, err = s.Get(context.Background(), "cache:missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorePutUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "kv_entries")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO kv_entries").
		WithArgs("cache:key", []byte("payload"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), "cache:key", []byte("payload"), time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreConditionalCreateLosesToLiveRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "kv_entries")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO kv_entries").
		WithArgs("lease:key", []byte("lease"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = s.ConditionalCreate(context.Background(), "lease:key", []byte("lease"), time.Minute)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteRemovesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock, "kv_entries")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM kv_entries").
		WithArgs("lease:key").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Delete(context.Background(), "lease:key"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "kv; DROP TABLE kv_entries")
	require.Error(t, err)
}
