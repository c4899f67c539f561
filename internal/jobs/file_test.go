package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/harunnryd/autosend/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(runAt time.Time) Job {
	return Job{
		ID:               NewID(),
		IdempotencyKey:   IdempotencyKey("ws-1", "msg-1", "auto_send", "draft-1"),
		Type:             "auto_send",
		WorkspaceID:      "ws-1",
		LeadID:           "lead-1",
		TriggerMessageID: "msg-1",
		DraftID:          "draft-1",
		RunAt:            runAt,
		MaxAttempts:      3,
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("ws", "msg", "auto_send", "draft")
	assert.Equal(t, a, IdempotencyKey("ws", "msg", "auto_send", "draft"))
	assert.NotEqual(t, a, IdempotencyKey("ws", "msg", "auto_send", "draft-2"))
	assert.NotEqual(t, IdempotencyKey("a", "bc", "t", "d"), IdempotencyKey("ab", "c", "t", "d"))
	assert.Contains(t, a, "auto_send:")
}

func TestFileStore_CreateRejectsDuplicateKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), FileStoreConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	first := newTestJob(time.Now().Add(time.Minute))
	require.NoError(t, store.Create(ctx, first))

	second := newTestJob(time.Now().Add(time.Hour))
	err = store.Create(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCollision)

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)
	assert.WithinDuration(t, first.RunAt, all[0].RunAt, time.Second, "existing job must not be overwritten")
}

func TestFileStore_ConcurrentCreateYieldsOneJob(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), FileStoreConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		collisions int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Create(ctx, newTestJob(time.Now()))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if apperrors.IsCategory(err, apperrors.ErrCollision) {
				collisions++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, collisions)
}

func TestFileStore_ClaimLifecycle(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), FileStoreConfig{})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	job := newTestJob(now.Add(time.Minute))
	require.NoError(t, store.Create(ctx, job))

	_, err = store.Claim(ctx, job.ID, now, time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrNotClaimable, "job is not due yet")

	later := now.Add(2 * time.Minute)
	due, err := store.ListDue(ctx, later, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := store.Claim(ctx, job.ID, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)

	_, err = store.Claim(ctx, job.ID, later, time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrNotClaimable, "lease still held")

	require.NoError(t, store.Release(ctx, job.ID, "smtp timeout"))
	reclaimed, err := store.Claim(ctx, job.ID, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, reclaimed.AttemptCount)
	assert.Equal(t, "smtp timeout", reclaimed.LastError)

	require.NoError(t, store.Complete(ctx, job.ID, StatusExecuted, "msg-out-1"))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, got.Status)
	assert.Equal(t, "msg-out-1", got.Result)
	assert.Nil(t, got.LockedUntil)

	err = store.Complete(ctx, job.ID, StatusSkipped, "again")
	assert.ErrorIs(t, err, apperrors.ErrNotClaimable)
}

func TestFileStore_ExpiredLeaseIsReclaimable(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), FileStoreConfig{})
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	job := newTestJob(now.Add(-time.Minute))
	require.NoError(t, store.Create(ctx, job))

	_, err = store.Claim(ctx, job.ID, now, time.Minute)
	require.NoError(t, err)

	afterLease := now.Add(2 * time.Minute)
	due, err := store.ListDue(ctx, afterLease, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	claimed, err := store.Claim(ctx, job.ID, afterLease, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed.AttemptCount)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir, FileStoreConfig{})
	require.NoError(t, err)
	job := newTestJob(time.Now())
	require.NoError(t, first.Create(ctx, job))

	second, err := NewFileStore(dir, FileStoreConfig{})
	require.NoError(t, err)
	got, err := second.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.IdempotencyKey, got.IdempotencyKey)

	err = second.Create(ctx, newTestJob(time.Now()))
	assert.ErrorIs(t, err, apperrors.ErrCollision)

	_, err = second.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
