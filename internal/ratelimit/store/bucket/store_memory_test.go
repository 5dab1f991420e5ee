package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowUpToLimit(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "client-a", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := store.Allow(ctx, "client-a", 3, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.False(t, res.ResetAt.IsZero())
}

func TestNonPositiveLimitDeniesWithoutRequests(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, limit := range []int{0, -1} {
		res, err := store.Allow(ctx, "client-a", limit, time.Hour)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.False(t, res.ResetAt.IsZero())
	}
}

func TestKeysAreIndependent(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	res, err := store.Allow(ctx, "client-a", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = store.Allow(ctx, "client-a", 1, time.Hour)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = store.Allow(ctx, "client-b", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestWindowSlides(t *testing.T) {
	store := NewInMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	res, err := store.Allow(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	current = current.Add(30 * time.Second)
	res, err = store.Allow(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	current = current.Add(31 * time.Second)
	res, err = store.Allow(ctx, "client-a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestReset(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, err := store.Allow(ctx, "client-a", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx, "client-a"))

	res, err := store.Allow(ctx, "client-a", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
