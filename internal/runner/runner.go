// Package runner executes pipeline plans against work records, owning every
// status and progress mutation after submission.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/events"
	"github.com/aaj441/aaronos-core/internal/postgres"
	redisstore "github.com/aaj441/aaronos-core/internal/redis"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
)

// startedProgress is the value written at the PENDING→RUNNING transition so
// pollers immediately see movement.
const startedProgress = 5

// Step is one unit of a pipeline plan. Weights across a plan sum to 100.
type Step struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, p *Progress) error
}

// Plan is an executable pipeline bound to a single work record. Result is
// called once, after every step has succeeded, to produce the terminal
// payload; a nil Result leaves the record without one. Cleanup, when set,
// runs after the job reaches any terminal state.
type Plan struct {
	Steps   []Step
	Result  func() any
	Cleanup func()
}

// Runner drives plans to a terminal state. A weighted semaphore caps how many
// jobs execute at once; further jobs stay PENDING until a slot frees up.
type Runner struct {
	repo      postgres.WorkRepository
	store     redisstore.StateStore
	publisher events.Publisher
	sem       *semaphore.Weighted
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithConcurrency caps simultaneously executing jobs. Defaults to 5.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithPublisher(p events.Publisher) Option { return func(r *Runner) { r.publisher = p } }

// New constructs a Runner with the given dependencies and options.
func New(repo postgres.WorkRepository, store redisstore.StateStore, opts ...Option) *Runner {
	r := &Runner{
		repo:      repo,
		store:     store,
		publisher: events.NopPublisher{},
		sem:       semaphore.NewWeighted(5),
		logger:    slog.Default(),
		cancels:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the plan in a goroutine and returns immediately. The job can
// be cancelled with Cancel until it reaches a terminal state.
func (r *Runner) Start(work *domain.WorkRecord, plan Plan) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.cancels[work.ID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.cancels, work.ID)
			r.mu.Unlock()
			cancel()
		}()
		if err := r.Execute(ctx, work, plan); err != nil {
			r.logger.Error("job execution error",
				slog.String("work_id", work.ID),
				slog.String("kind", string(work.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Cancel requests cancellation of a running job. Returns false when the job
// is unknown or already terminal.
func (r *Runner) Cancel(workID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[workID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every started job has reached a terminal state.
func (r *Runner) Wait() { r.wg.Wait() }

// Execute runs the plan to completion, failure, or cancellation. It assumes
// the record is PENDING and is the only writer of the record from here on.
func (r *Runner) Execute(ctx context.Context, work *domain.WorkRecord, plan Plan) error {
	if err := validateWeights(plan.Steps); err != nil {
		return err
	}
	if !work.Status.CanTransition(domain.WorkRunning) {
		return &domain.InvalidTransitionError{WorkID: work.ID, From: work.Status, To: domain.WorkRunning}
	}
	if plan.Cleanup != nil {
		defer plan.Cleanup()
	}

	log := r.logger.With(
		slog.String("work_id", work.ID),
		slog.String("kind", string(work.Kind)),
	)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		// Cancelled while queued behind the concurrency cap.
		log.Info("job cancelled before starting")
		r.finish(ctx, work, domain.WorkCancelled, "", nil, time.Now())
		return nil
	}
	defer r.sem.Release(1)

	ctx, span := otel.Tracer("runner").Start(ctx, "runner.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("work.id", work.ID),
		attribute.String("work.kind", string(work.Kind)),
	)

	start := time.Now()
	telemetry.JobsInFlight.WithLabelValues(string(work.Kind)).Inc()
	defer telemetry.JobsInFlight.WithLabelValues(string(work.Kind)).Dec()

	exec := &execution{runner: r, work: work, pct: startedProgress}
	r.transitionRunning(ctx, work)
	log.Info("job started", slog.Int("steps", len(plan.Steps)))

	base := 0
	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			log.Info("job cancelled", slog.String("step", step.Name))
			r.finish(ctx, work, domain.WorkCancelled, "", nil, start)
			return nil
		}

		if err := r.runStep(ctx, work, step, &Progress{exec: exec, base: base, weight: step.Weight}); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("job cancelled", slog.String("step", step.Name))
				r.finish(ctx, work, domain.WorkCancelled, "", nil, start)
				return nil
			}
			log.Error("job failed",
				slog.String("step", step.Name),
				slog.String("error", err.Error()),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			r.finish(ctx, work, domain.WorkFailed, fmt.Sprintf("%s: %s", step.Name, err.Error()), nil, start)
			return nil
		}

		base += step.Weight
		exec.report(ctx, base)
	}

	var result any
	if plan.Result != nil {
		result = plan.Result()
	}
	log.Info("job completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	r.finish(ctx, work, domain.WorkCompleted, "", result, start)
	return nil
}

func (r *Runner) runStep(ctx context.Context, work *domain.WorkRecord, step Step, p *Progress) error {
	ctx, span := otel.Tracer("runner").Start(ctx, "runner.step."+step.Name)
	defer span.End()
	span.SetAttributes(attribute.String("step.name", step.Name))

	start := time.Now()
	err := step.Run(ctx, p)
	telemetry.StepDurationSeconds.
		WithLabelValues(string(work.Kind), step.Name).
		Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *Runner) transitionRunning(ctx context.Context, work *domain.WorkRecord) {
	status := domain.WorkRunning
	progress := startedProgress
	work.Status = status
	work.Progress = progress

	if err := r.repo.Update(ctx, work.ID, postgres.WorkUpdate{Status: &status, Progress: &progress}); err != nil {
		r.logger.Error("failed to persist RUNNING status", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}
	if err := r.store.SetState(ctx, work.ID, redisstore.WorkState{Status: status, Progress: progress}); err != nil {
		r.logger.Error("failed to cache RUNNING state", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}
}

// finish writes the terminal state. It uses a detached context so the write
// survives the cancellation that may have caused it. CompletedAt is recorded
// only for successful completions; failed and cancelled records keep it nil.
func (r *Runner) finish(ctx context.Context, work *domain.WorkRecord, status domain.WorkStatus, errMsg string, result any, start time.Time) {
	ctx = context.WithoutCancel(ctx)
	if !work.Status.CanTransition(status) {
		invalid := &domain.InvalidTransitionError{WorkID: work.ID, From: work.Status, To: status}
		r.logger.Error("refusing status transition", slog.String("work_id", work.ID), slog.String("error", invalid.Error()))
		return
	}

	upd := postgres.WorkUpdate{}
	if errMsg != "" {
		upd.Error = &errMsg
	}
	if result != nil {
		raw, err := domain.EncodeResult(work.Kind, result)
		if err != nil {
			r.logger.Error("failed to encode result", slog.String("work_id", work.ID), slog.String("error", err.Error()))
			status = domain.WorkFailed
			msg := err.Error()
			upd.Error = &msg
			errMsg = msg
		} else {
			upd.Result = raw
			work.Result = raw
		}
	}

	now := time.Now().UTC()
	progress := work.Progress
	if status == domain.WorkCompleted {
		progress = 100
		upd.CompletedAt = &now
		work.CompletedAt = &now
	}
	upd.Status = &status
	upd.Progress = &progress

	work.Status = status
	work.Progress = progress
	work.Error = errMsg

	if err := r.repo.Update(ctx, work.ID, upd); err != nil {
		r.logger.Error("failed to persist terminal status", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}
	if err := r.store.SetState(ctx, work.ID, redisstore.WorkState{Status: status, Progress: progress, Error: errMsg}); err != nil {
		r.logger.Error("failed to cache terminal state", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}

	if err := r.publisher.PublishWorkEvent(ctx, events.WorkEvent{
		WorkID:     work.ID,
		Kind:       work.Kind,
		OwnerID:    work.OwnerID,
		Status:     status,
		Error:      errMsg,
		OccurredAt: now,
	}); err != nil {
		r.logger.Error("failed to publish lifecycle event", slog.String("work_id", work.ID), slog.String("error", err.Error()))
	}

	telemetry.JobsFinished.WithLabelValues(string(work.Kind), string(status)).Inc()
	telemetry.JobDurationSeconds.WithLabelValues(string(work.Kind)).Observe(time.Since(start).Seconds())
}

func validateWeights(steps []Step) error {
	if len(steps) == 0 {
		return nil
	}
	sum := 0
	for _, s := range steps {
		if s.Weight <= 0 {
			return fmt.Errorf("step %q has non-positive weight %d", s.Name, s.Weight)
		}
		sum += s.Weight
	}
	if sum != 100 {
		return fmt.Errorf("step weights sum to %d, want 100", sum)
	}
	return nil
}
