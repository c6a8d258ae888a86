package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunLocker(t *testing.T) {
	locker := NewLocalRunLocker()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "correlation:run:s1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "correlation:run:s1", time.Minute)
	assert.ErrorIs(t, err, ErrRunInProgress)

	other, err := locker.Acquire(ctx, "correlation:run:s2", time.Minute)
	require.NoError(t, err, "different keys do not contend")
	other()

	release()
	release()

	again, err := locker.Acquire(ctx, "correlation:run:s1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalRunLockerExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := &localRunLocker{held: map[string]time.Time{}, nowFn: func() time.Time { return now }}
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err, "expired lease can be taken over")

	stale()
	_, err = locker.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrRunInProgress, "stale release must not drop the new holder")

	fresh()
}

func TestLocalRunLockerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalRunLocker().Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClickIDGenerator(t *testing.T) {
	gen, err := NewClickIDGenerator(3)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := gen.NewClickID()
		assert.NotEmpty(t, id)
		assert.LessOrEqual(t, len(id), 12)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)

	_, err = NewClickIDGenerator(5000)
	assert.Error(t, err)
}
