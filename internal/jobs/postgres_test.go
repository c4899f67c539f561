package jobs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	apperrors "github.com/harunnryd/autosend/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var jobColumnNames = []string{
	"id", "idempotency_key", "job_type", "workspace_id", "lead_id", "trigger_message_id", "draft_id",
	"status", "run_at", "attempt_count", "max_attempts", "locked_until", "last_error", "result", "payload",
	"created_at", "updated_at",
}

func jobRow(id string, status Status, attempts int, lockedUntil any) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, "auto_send:abc", "auto_send", "ws-1", "lead-1", "msg-1", "draft-1",
		string(status), now, attempts, 3, lockedUntil, "", "", []byte(`{"confidence":0.95,"threshold":0.9,"delay_seconds":240}`),
		now, now,
	)
}

func TestPostgresStore_Create(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)

	mock.ExpectExec("INSERT INTO auto_send_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Create(context.Background(), newTestJob(time.Now()))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCollisionOnConflict(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)

	mock.ExpectExec("INSERT INTO auto_send_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Create(context.Background(), newTestJob(time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrCollision)
}

func TestPostgresStore_CreateCollisionOnUniqueViolation(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)

	mock.ExpectExec("INSERT INTO auto_send_jobs").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.Create(context.Background(), newTestJob(time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrCollision)
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT (.+) FROM auto_send_jobs WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresStore_Claim(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	lockedUntil := now.Add(5 * time.Minute)

	mock.ExpectQuery("UPDATE auto_send_jobs").
		WithArgs("job-1", now, lockedUntil).
		WillReturnRows(jobRow("job-1", StatusRunning, 1, lockedUntil))

	job, err := store.Claim(context.Background(), "job-1", now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	require.NotNil(t, job.LockedUntil)
	assert.Equal(t, 240, job.Payload.DelaySeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNotClaimable(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)

	mock.ExpectQuery("UPDATE auto_send_jobs").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Claim(context.Background(), "job-1", time.Now(), time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrNotClaimable)
}

func TestPostgresStore_CompleteAndRelease(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE auto_send_jobs").
		WithArgs("job-1", "executed", "msg-out-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Complete(ctx, "job-1", StatusExecuted, "msg-out-1"))

	mock.ExpectExec("UPDATE auto_send_jobs").
		WithArgs("job-2", "smtp timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Release(ctx, "job-2", "smtp timeout")
	assert.ErrorIs(t, err, apperrors.ErrNotClaimable)

	err = store.Complete(ctx, "job-3", StatusRunning, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDue(t *testing.T) {
	db, mock := setupTestDB(t)
	store := NewPostgresStore(db)
	now := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	rows := sqlmock.NewRows(jobColumnNames).
		AddRow("job-1", "k1", "auto_send", "ws", "lead", "m1", "d1", "pending", now, 0, 3, nil, "", "", []byte(`{}`), now, now).
		AddRow("job-2", "k2", "auto_send", "ws", "lead", "m2", "d2", "running", now, 1, 3, now.Add(-time.Minute), "", "", []byte(`{}`), now, now)
	mock.ExpectQuery("SELECT (.+) FROM auto_send_jobs").
		WithArgs(now, 25).
		WillReturnRows(rows)

	due, err := store.ListDue(context.Background(), now, 25)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, StatusPending, due[0].Status)
	assert.Nil(t, due[0].LockedUntil)
	assert.NotNil(t, due[1].LockedUntil)
}
