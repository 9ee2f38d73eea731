//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
	"github.com/aaj441/aaronos-core/internal/runner"
)

// TestJobExecutionEndToEnd drives a plan through the runner against real
// Postgres and Redis: both stores must converge on the terminal state.
func TestJobExecutionEndToEnd(t *testing.T) {
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	defer pool.Close()
	repo := postgres.NewWorkRepository(pool)

	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	store := redisstore.NewStateStore(client)

	work := newWork(domain.KindResearch, "owner-e2e")
	require.NoError(t, repo.Create(ctx, work))
	require.NoError(t, store.SetState(ctx, work.ID, redisstore.WorkState{Status: domain.WorkPending}))

	jobs := runner.New(repo, store)
	plan := runner.Plan{
		Steps: []runner.Step{
			{Name: "prepare", Weight: 40, Run: func(ctx context.Context, p *runner.Progress) error {
				p.Report(ctx, 1, 1)
				return nil
			}},
			{Name: "produce", Weight: 60, Run: func(ctx context.Context, p *runner.Progress) error {
				p.Report(ctx, 1, 1)
				return nil
			}},
		},
		Result: func() any {
			return &domain.ResearchResult{
				Summary:    "end to end",
				Insights:   []string{"runner persists through both stores"},
				Sources:    []string{"generated:itest"},
				Confidence: 0.5,
			}
		},
	}

	jobs.Start(work, plan)
	jobs.Wait()

	got, err := repo.GetByID(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Contains(t, string(got.Result), `"summary":"end to end"`)
	require.NotNil(t, got.CompletedAt)

	state, err := store.GetState(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkCompleted, state.Status)
	assert.Equal(t, 100, state.Progress)
}

// TestJobCancellationEndToEnd cancels a running job and verifies the
// CANCELLED state reaches both stores with no result payload.
func TestJobCancellationEndToEnd(t *testing.T) {
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	defer pool.Close()
	repo := postgres.NewWorkRepository(pool)

	client := redisstore.NewClient(testRedisAddr)
	defer client.Close()
	store := redisstore.NewStateStore(client)

	work := newWork(domain.KindAccessibilityScan, "owner-e2e-cancel")
	require.NoError(t, repo.Create(ctx, work))

	started := make(chan struct{})
	jobs := runner.New(repo, store)
	plan := runner.Plan{
		Steps: []runner.Step{
			{Name: "block", Weight: 100, Run: func(ctx context.Context, _ *runner.Progress) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			}},
		},
		Result: func() any { return &domain.ScanResult{} },
	}

	jobs.Start(work, plan)
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("job never started")
	}

	require.True(t, jobs.Cancel(work.ID))
	jobs.Wait()

	got, err := repo.GetByID(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkCancelled, got.Status)
	assert.Empty(t, got.Result)
	require.Nil(t, got.CompletedAt)

	state, err := store.GetState(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkCancelled, state.Status)
}
