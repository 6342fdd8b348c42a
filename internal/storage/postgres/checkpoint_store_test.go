package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/book-harvester/internal/checkpoint"
)

func newMockCheckpointStore(t *testing.T) (*CheckpointStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCheckpointStore(mock, "", nil)
	require.NoError(t, err)
	return store, mock
}

func TestCheckpointStoreLoad(t *testing.T) {
	t.Parallel()

	store, mock := newMockCheckpointStore(t)
	rows := pgxmock.NewRows([]string{"id", "record"}).
		AddRow(int64(84), []byte(`{"id":84,"title":"Frankenstein","word_count":78000}`)).
		AddRow(int64(85), []byte(`{broken`)).
		AddRow(int64(1342), []byte(`{"title":"Pride and Prejudice","word_count":122000}`))
	mock.ExpectQuery("SELECT id, record FROM harvested_books").WillReturnRows(rows)

	require.NoError(t, store.Load(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, store.IsCollected(84))
	assert.False(t, store.IsCollected(85), "undecodable rows are skipped")
	assert.True(t, store.IsCollected(1342))
	assert.Equal(t, 2, store.Count())

	recs := store.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 1342, recs[1].ID, "id comes from the row key")
	assert.Equal(t, "Pride and Prejudice", recs[1].Title)
}

func TestCheckpointStoreLoadQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockCheckpointStore(t)
	mock.ExpectQuery("SELECT id, record FROM harvested_books").WillReturnError(errors.New("connection refused"))

	err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load checkpoint")
}

func TestCheckpointStoreRecordAcceptedUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockCheckpointStore(t)
	rec := checkpoint.Record{
		ID:        84,
		Title:     "Frankenstein",
		Filename:  "84.txt",
		WordCount: 78000,
		SavedAt:   time.Unix(1700000000, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO harvested_books").
		WithArgs(int64(84), pgxmock.AnyArg(), rec.SavedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordAccepted(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, store.IsCollected(84))
}

func TestCheckpointStoreRecordAcceptedFailureLeavesCacheUntouched(t *testing.T) {
	t.Parallel()

	store, mock := newMockCheckpointStore(t)
	mock.ExpectExec("INSERT INTO harvested_books").
		WithArgs(int64(9), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("deadlock detected"))

	err := store.RecordAccepted(context.Background(), checkpoint.Record{ID: 9, SavedAt: time.Now()})
	require.ErrorContains(t, err, "deadlock detected")
	require.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, store.IsCollected(9))
	assert.Equal(t, 0, store.Count())
}

func TestCheckpointStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockCheckpointStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS harvested_books").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCheckpointStoreValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := NewCheckpointStore(nil, "", nil)
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewCheckpointStore(mock, "books; DROP TABLE x", nil)
	assert.Error(t, err)
}
