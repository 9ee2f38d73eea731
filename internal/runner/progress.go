package runner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
)

// execution tracks the record-level progress percentage for one job. All
// Progress handles of a plan share it, so the value can only move forward.
type execution struct {
	runner *Runner
	work   *domain.WorkRecord
	mu     sync.Mutex
	pct    int
}

// Progress lets a step report partial completion. The overall percentage is
// the step's base plus its weight scaled by done/total.
type Progress struct {
	exec   *execution
	base   int
	weight int
}

// Report records that done of total units within the step have finished and
// writes the new percentage through to both stores. Regressions are ignored.
func (p *Progress) Report(ctx context.Context, done, total int) {
	if total <= 0 {
		return
	}
	if done > total {
		done = total
	}
	if done < 0 {
		done = 0
	}
	p.exec.report(ctx, p.base+p.weight*done/total)
}

func (e *execution) report(ctx context.Context, pct int) {
	// 100 is reserved for the terminal COMPLETED write.
	if pct > 99 {
		pct = 99
	}

	e.mu.Lock()
	if pct <= e.pct {
		e.mu.Unlock()
		return
	}
	e.pct = pct
	e.mu.Unlock()

	e.work.Progress = pct
	r := e.runner
	if err := r.repo.Update(ctx, e.work.ID, postgres.WorkUpdate{Progress: &pct}); err != nil {
		r.logger.Error("failed to persist progress", slog.String("work_id", e.work.ID), slog.String("error", err.Error()))
	}
	if err := r.store.SetState(ctx, e.work.ID, redisstore.WorkState{Status: e.work.Status, Progress: pct}); err != nil {
		r.logger.Error("failed to cache progress", slog.String("work_id", e.work.ID), slog.String("error", err.Error()))
	}
}
