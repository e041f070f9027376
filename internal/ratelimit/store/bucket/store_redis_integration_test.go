//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awardvote/pkg/requestcontext"
	"awardvote/pkg/testutil/containers"
)

func TestRedisBucketStore(t *testing.T) {
	store := NewRedisBucketStore(containers.StartRedis(t))
	now := time.Now().Truncate(time.Millisecond)
	ctx := requestcontext.WithTime(context.Background(), now)

	for i := range 2 {
		res, err := store.Allow(ctx, "ratelimit:test", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1-i, res.Remaining)
	}

	later := requestcontext.WithTime(context.Background(), now.Add(15*time.Second))
	res, err := store.Allow(later, "ratelimit:test", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 45, res.RetryAfter)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())

	require.NoError(t, store.Reset(ctx, "ratelimit:test"))
	res, err = store.Allow(later, "ratelimit:test", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
