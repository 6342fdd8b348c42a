package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/book-harvester/internal/store"
)

func newMockRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	runs, err := NewRunStore(mock, "")
	require.NoError(t, err)
	return runs, mock
}

func TestRunStoreStartAndComplete(t *testing.T) {
	t.Parallel()

	runs, mock := newMockRunStore(t)
	runID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(runID, started, "running", 200).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(finished, "partial", 150, 40, (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, runs.StartRun(context.Background(), runID, started, 200))
	require.NoError(t, runs.CompleteRun(context.Background(), runID, store.RunResult{
		FinishedAt: finished,
		Status:     store.RunPartial,
		Accepted:   150,
		Saved:      40,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreCompleteUnknownRun(t *testing.T) {
	t.Parallel()

	runs, mock := newMockRunStore(t)
	runID := uuid.New()
	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(pgxmock.AnyArg(), "complete", 0, 0, (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := runs.CompleteRun(context.Background(), runID, store.RunResult{Status: store.RunComplete})
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	runs, mock := newMockRunStore(t)
	runID := uuid.New()
	mock.ExpectQuery("SELECT id, started_at").WithArgs(runID).WillReturnError(pgx.ErrNoRows)

	_, err := runs.GetRun(context.Background(), runID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	runs, mock := newMockRunStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(2 * time.Minute)
	msg := "fetch page 3: gateway timeout"

	rows := pgxmock.NewRows([]string{
		"id", "started_at", "finished_at", "status", "target", "accepted", "saved", "error_message",
	}).AddRow(id, started, &finished, "error", 200, 120, 20, &msg)
	mock.ExpectQuery("SELECT id, started_at").WithArgs(5).WillReturnRows(rows)

	got, err := runs.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, store.RunError, got[0].Status)
	assert.Equal(t, 120, got[0].Accepted)
	require.NotNil(t, got[0].ErrorMessage)
	assert.Equal(t, msg, *got[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}
