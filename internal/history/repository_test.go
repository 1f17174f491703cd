package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-infra/prism-sync/internal/projects/domain"
	"github.com/prism-infra/prism-sync/internal/risksync"
)

func setupRepo(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewRepository(db), mock, db
}

func sampleRun() Run {
	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	return NewRun("u1", started, started.Add(3*time.Second), []risksync.Progress{
		{Index: 0, Total: 2, ProjectID: 1, Result: &risksync.Result{ProjectID: 1, Probability: 0.42, Label: domain.RiskMedium}},
		{Index: 1, Total: 2, ProjectID: 2, Err: errors.New("predictor timeout")},
	})
}

func TestNewRun(t *testing.T) {
	run := sampleRun()

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.Attempted)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Items, 2)
	assert.Equal(t, domain.RiskMedium, run.Items[0].Label)
	require.NotNil(t, run.Items[0].Probability)
	assert.Equal(t, 0.42, *run.Items[0].Probability)
	assert.Equal(t, "predictor timeout", run.Items[1].Error)
	assert.Nil(t, run.Items[1].Probability)
}

func TestRepository_Record(t *testing.T) {
	t.Run("writes run and items in one transaction", func(t *testing.T) {
		repo, mock, db := setupRepo(t)
		defer db.Close()
		run := sampleRun()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO risk_refresh_runs`).
			WithArgs(run.ID, sqlmock.AnyArg(), run.StartedAt, run.FinishedAt, 2, 1, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO risk_refresh_items`).
			WithArgs(run.ID, 0, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO risk_refresh_items`).
			WithArgs(run.ID, 1, int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Record(context.Background(), run))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when an item insert fails", func(t *testing.T) {
		repo, mock, db := setupRepo(t)
		defer db.Close()
		run := sampleRun()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO risk_refresh_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO risk_refresh_items`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := repo.Record(context.Background(), run)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListRecent(t *testing.T) {
	repo, mock, db := setupRepo(t)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, user_id, started_at, finished_at, attempted, succeeded, failed\s+FROM risk_refresh_runs`).
		WithArgs("u1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "started_at", "finished_at", "attempted", "succeeded", "failed"}).
			AddRow("run-2", "u1", now, now, 3, 3, 0).
			AddRow("run-1", nil, now.Add(-time.Hour), now.Add(-time.Hour), 2, 1, 1))

	runs, err := repo.ListRecent(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "u1", runs[0].UserID)
	assert.Equal(t, "", runs[1].UserID)
	assert.Equal(t, 1, runs[1].Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo, mock, db := setupRepo(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS risk_refresh_runs`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
