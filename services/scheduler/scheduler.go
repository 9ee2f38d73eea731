// Package scheduler runs named maintenance tasks on cron triggers, recording
// every run and guarding each task against overlapping executions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aaj441/aaronos-core/internal/domain"
	"github.com/aaj441/aaronos-core/internal/postgres"
	"github.com/aaj441/aaronos-core/pkg/telemetry"
)

// Handler is the body of a scheduled task. Errors and panics are recorded on
// the TaskRun and never escalate past the scheduler.
type Handler func(ctx context.Context) error

// TaskStatus is the observability view of one registered task.
type TaskStatus struct {
	Task *domain.ScheduledTask `json:"task"`
	Runs []*domain.TaskRun     `json:"runs"`
}

type taskEntry struct {
	task    *domain.ScheduledTask
	handler Handler
	running atomic.Bool
}

// Scheduler owns the process-wide registry of recurring tasks.
type Scheduler struct {
	repo   postgres.ScheduleRepository
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*taskEntry
	stopped bool
}

// New constructs an empty Scheduler.
func New(repo postgres.ScheduleRepository, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repo:    repo,
		cron:    cron.New(),
		logger:  logger,
		entries: make(map[string]*taskEntry),
	}
}

// Register binds name to a cron trigger, upserting the task definition.
// Re-registering an existing name updates its expression only. A task
// disabled in the database is registered but never dispatched.
func (s *Scheduler) Register(ctx context.Context, name, cronExpr string, handler Handler) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("parse cron %q for task %q: %w", cronExpr, name, err)
	}

	task, err := s.repo.UpsertTask(ctx, name, cronExpr)
	if err != nil {
		return fmt.Errorf("register task %q: %w", name, err)
	}

	entry := &taskEntry{task: task, handler: handler}

	s.mu.Lock()
	s.entries[name] = entry
	s.mu.Unlock()

	if !task.Enabled {
		s.logger.Info("task registered but disabled", slog.String("task", name))
		return nil
	}

	if _, err := s.cron.AddFunc(cronExpr, func() { s.fire(entry) }); err != nil {
		return fmt.Errorf("bind cron trigger for task %q: %w", name, err)
	}

	s.logger.Info("task registered",
		slog.String("task", name),
		slog.String("cron", cronExpr),
	)
	return nil
}

// Start begins dispatching triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("tasks", len(s.entries)))
}

// Stop halts all future firings and waits for in-flight runs. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Status returns the definition and recent run history for one task.
func (s *Scheduler) Status(ctx context.Context, name string) (*TaskStatus, error) {
	s.mu.Lock()
	_, known := s.entries[name]
	s.mu.Unlock()
	if !known {
		return nil, &domain.TaskNotFoundError{Name: name}
	}

	task, err := s.repo.GetTask(ctx, name)
	if err != nil {
		return nil, err
	}
	runs, err := s.repo.ListRuns(ctx, task.ID, 20)
	if err != nil {
		return nil, err
	}
	return &TaskStatus{Task: task, Runs: runs}, nil
}

// AllStatuses returns the status of every registered task, ordered by name.
func (s *Scheduler) AllStatuses(ctx context.Context) ([]*TaskStatus, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]*TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		runs, err := s.repo.ListRuns(ctx, task.ID, 5)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, &TaskStatus{Task: task, Runs: runs})
	}
	return statuses, nil
}

// fire executes one trigger firing. A firing that arrives while the previous
// run is still in progress is skipped, keeping at most one RUNNING TaskRun
// per task.
func (s *Scheduler) fire(entry *taskEntry) {
	if err := s.tryFire(entry); err != nil {
		telemetry.SchedulerSkippedOverlaps.WithLabelValues(entry.task.Name).Inc()
		s.logger.Warn("skipping trigger", slog.String("error", err.Error()))
	}
}

// tryFire claims the task's run slot and executes the handler, reporting a
// TaskOverlapError when the previous run has not released the slot yet.
func (s *Scheduler) tryFire(entry *taskEntry) error {
	name := entry.task.Name

	if !entry.running.CompareAndSwap(false, true) {
		return &domain.TaskOverlapError{Name: name}
	}
	defer entry.running.Store(false)

	ctx := context.Background()
	run, err := s.repo.CreateRun(ctx, entry.task.ID)
	if err != nil {
		s.logger.Error("failed to create task run",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	start := time.Now()
	runErr := s.invoke(ctx, entry.handler)
	ended := time.Now().UTC()
	durationMs := time.Since(start).Milliseconds()

	status := domain.RunSuccess
	errMsg := ""
	outcome := "success"
	if runErr != nil {
		status = domain.RunFailed
		errMsg = runErr.Error()
		outcome = "failed"
		s.logger.Error("task run failed",
			slog.String("task", name),
			slog.String("error", errMsg),
			slog.Int64("duration_ms", durationMs),
		)
	} else {
		s.logger.Info("task run finished",
			slog.String("task", name),
			slog.Int64("duration_ms", durationMs),
		)
	}

	if err := s.repo.FinishRun(ctx, run.ID, status, ended, durationMs, errMsg); err != nil {
		s.logger.Error("failed to finish task run", slog.String("task", name), slog.String("error", err.Error()))
	}
	if err := s.repo.UpdateTaskOutcome(ctx, entry.task.ID, ended, outcome); err != nil {
		s.logger.Error("failed to update task outcome", slog.String("task", name), slog.String("error", err.Error()))
	}

	telemetry.SchedulerRuns.WithLabelValues(name, outcome).Inc()
	telemetry.SchedulerRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return nil
}

// invoke runs the handler, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return handler(ctx)
}
