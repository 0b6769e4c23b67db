package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/waymark/internal/backoff"
	"github.com/roach88/waymark/internal/schema"
)

func fixedVersion(v int64) VersionFunc {
	return func(context.Context) (int64, error) { return v, nil }
}

func noDelay() RetryOptions {
	return RetryOptions{Strategy: backoff.NewConstant(0)}
}

func TestUpdateWithRetry_SucceedsFirstAttempt(t *testing.T) {
	m, _ := newTestManager()

	var calls int
	var seen *schema.Lock
	err := m.UpdateWithRetry(context.Background(), "job-1", "runner-a", fixedVersion(4),
		func(_ context.Context, lease *schema.Lock) error {
			calls++
			seen = lease
			return nil
		}, noDelay())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.NotNil(t, seen)
	assert.Equal(t, int64(4), seen.Version)
	assert.Nil(t, m.Status("job-1"), "lease released on success")
}

func TestUpdateWithRetry_RetriesLockConflictUntilFreed(t *testing.T) {
	m, _ := newTestManager()

	blocker, err := m.Acquire("job-1", "other", 1, 0)
	require.NoError(t, err)

	err = m.UpdateWithRetry(context.Background(), "job-1", "runner-a", fixedVersion(1),
		func(context.Context, *schema.Lock) error { return nil },
		RetryOptions{
			MaxRetries: 5,
			Strategy: backoff.StrategyFunc(func(n int) time.Duration {
				// Free the resource after the second conflict.
				if n == 2 {
					m.Release(blocker.LockID)
				}
				return 0
			}),
		})

	require.NoError(t, err)
	assert.Nil(t, m.Status("job-1"))
}

func TestUpdateWithRetry_ConflictExhaustsRetries(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Acquire("job-1", "other", 1, 0)
	require.NoError(t, err)

	opts := noDelay()
	opts.MaxRetries = 2
	err = m.UpdateWithRetry(context.Background(), "job-1", "runner-a", fixedVersion(1),
		func(context.Context, *schema.Lock) error {
			t.Fatal("update must not run without the lease")
			return nil
		}, opts)

	require.Error(t, err)
	require.True(t, IsRetriesExhausted(err))
	assert.True(t, IsConflict(err), "last conflict reachable through Unwrap")

	var re *RetriesExhaustedError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Attempts)
}

func TestUpdateWithRetry_UpdateErrorNotRetried(t *testing.T) {
	m, _ := newTestManager()

	boom := errors.New("disk full")
	var calls int
	opts := noDelay()
	opts.MaxRetries = 5
	err := m.UpdateWithRetry(context.Background(), "job-1", "runner-a", fixedVersion(1),
		func(context.Context, *schema.Lock) error {
			calls++
			return boom
		}, opts)

	require.ErrorIs(t, err, boom)
	assert.False(t, IsRetriesExhausted(err))
	assert.Equal(t, 1, calls, "update errors are terminal")
	assert.Nil(t, m.Status("job-1"), "lease released before surfacing the error")
}

func TestUpdateWithRetry_VersionConflictRereadsVersion(t *testing.T) {
	m, _ := newTestManager()

	// The version source moves after the first read, as if another
	// writer committed between acquire and validate.
	var version atomic.Int64
	version.Store(1)
	readVersion := func(context.Context) (int64, error) { return version.Load(), nil }

	var calls int
	opts := noDelay()
	opts.MaxRetries = 3
	err := m.UpdateWithRetry(context.Background(), "job-1", "runner-a", readVersion,
		func(_ context.Context, lease *schema.Lock) error {
			calls++
			if calls == 1 {
				// Concurrent commit: bump the stored version and refresh
				// the lease to it, invalidating this attempt's bound.
				version.Store(2)
				_, err := m.Acquire("job-1", "runner-a", 2, 0)
				return err
			}
			return nil
		}, opts)

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "second attempt sees the new version and commits")
	assert.Nil(t, m.Status("job-1"))
}

func TestUpdateWithRetry_ExhaustionLeavesNoOrphanLease(t *testing.T) {
	m, _ := newTestManager()

	opts := noDelay()
	opts.MaxRetries = 2
	err := m.UpdateWithRetry(context.Background(), "job-1", "runner-a", fixedVersion(1),
		func(_ context.Context, lease *schema.Lock) error {
			// Poison every attempt with a version conflict.
			_, err := m.Acquire("job-1", "runner-a", 99, 0)
			return err
		}, opts)

	require.Error(t, err)
	require.True(t, IsRetriesExhausted(err))
	assert.True(t, IsVersionConflict(err))
	assert.Nil(t, m.Status("job-1"), "no active lease after exhaustion")
	assert.Empty(t, m.Snapshot())
}

func TestUpdateWithRetry_ReadVersionErrorSurfaces(t *testing.T) {
	m, _ := newTestManager()

	boom := errors.New("store offline")
	err := m.UpdateWithRetry(context.Background(), "job-1", "runner-a",
		func(context.Context) (int64, error) { return 0, boom },
		func(context.Context, *schema.Lock) error {
			t.Fatal("update must not run")
			return nil
		}, noDelay())

	require.ErrorIs(t, err, boom)
	assert.Nil(t, m.Status("job-1"))
}

func TestUpdateWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Acquire("job-1", "other", 1, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.UpdateWithRetry(ctx, "job-1", "runner-a", fixedVersion(1),
			func(context.Context, *schema.Lock) error { return nil },
			RetryOptions{MaxRetries: 10, Strategy: backoff.NewConstant(time.Hour)})
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("UpdateWithRetry did not honor cancellation")
	}
}

func TestUpdateWithRetry_CancelledBeforeStart(t *testing.T) {
	m, _ := newTestManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.UpdateWithRetry(ctx, "job-1", "runner-a", fixedVersion(1),
		func(context.Context, *schema.Lock) error {
			t.Fatal("update must not run")
			return nil
		}, noDelay())

	require.ErrorIs(t, err, context.Canceled)
}
