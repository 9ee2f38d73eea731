//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/domain"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
)

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	store := redisstore.NewStateStore(client)

	state := redisstore.WorkState{Status: domain.WorkRunning, Progress: 45}
	require.NoError(t, store.SetState(ctx, "itest-work-1", state))

	got, err := store.GetState(ctx, "itest-work-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkRunning, got.Status)
	assert.Equal(t, 45, got.Progress)
	assert.Empty(t, got.Error)
}

func TestStateStoreOverwriteKeepsLatest(t *testing.T) {
	ctx := context.Background()
	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	store := redisstore.NewStateStore(client)

	require.NoError(t, store.SetState(ctx, "itest-work-2", redisstore.WorkState{Status: domain.WorkRunning, Progress: 20}))
	require.NoError(t, store.SetState(ctx, "itest-work-2", redisstore.WorkState{
		Status:   domain.WorkFailed,
		Progress: 60,
		Error:    "step gather_sources: connection refused",
	}))

	got, err := store.GetState(ctx, "itest-work-2")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkFailed, got.Status)
	assert.Equal(t, "step gather_sources: connection refused", got.Error)
}

func TestStateStoreMissingKey(t *testing.T) {
	ctx := context.Background()
	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	store := redisstore.NewStateStore(client)

	_, err := store.GetState(ctx, "itest-missing")
	var notFound *domain.WorkNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRateLimiterBoundsSubmissions(t *testing.T) {
	ctx := context.Background()
	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	limiter := redisstore.NewRateLimiter(client, 3, time.Minute)

	owner := "itest-owner-limit"
	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, owner)
		require.NoError(t, err)
		assert.True(t, ok, "submission %d should be allowed", i+1)
	}

	ok, err := limiter.Allow(ctx, owner)
	require.NoError(t, err)
	assert.False(t, ok, "fourth submission should be rejected")
}

func TestRateLimiterIsolatesOwners(t *testing.T) {
	ctx := context.Background()
	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	limiter := redisstore.NewRateLimiter(client, 1, time.Minute)

	ok, err := limiter.Allow(ctx, "itest-owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "itest-owner-a")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Allow(ctx, "itest-owner-b")
	require.NoError(t, err)
	assert.True(t, ok, "a different owner has an independent window")
}
