package github

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatorRequiresTokens(t *testing.T) {
	t.Parallel()

	_, err := NewRotator(nil, 0, nil)
	assert.Error(t, err)
}

func TestRotateCyclesThroughPool(t *testing.T) {
	t.Parallel()

	r, err := NewRotator([]string{"a", "b", "c"}, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, "a", r.Current())
	assert.Equal(t, 2, r.Rotate())
	assert.Equal(t, "b", r.Current())
	assert.Equal(t, 3, r.Rotate())
	assert.Equal(t, "c", r.Current())
	assert.Equal(t, 1, r.Rotate(), "rotation wraps to the first token")
	assert.Equal(t, "a", r.Current())
	assert.Equal(t, 3, r.Size())
}

func TestWaitForQuotaPastResetReturnsImmediately(t *testing.T) {
	t.Parallel()

	r, err := NewRotator([]string{"a"}, 0, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, r.WaitForQuota(context.Background(), time.Now().Add(-time.Hour)))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForQuotaHonorsCancellation(t *testing.T) {
	t.Parallel()

	r, err := NewRotator([]string{"a"}, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.WaitForQuota(ctx, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
