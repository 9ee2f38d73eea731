package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaj441/aaronos-core/internal/domain"
)

// ScheduleRepository persists scheduled task definitions and their run history.
type ScheduleRepository interface {
	UpsertTask(ctx context.Context, name, cronExpr string) (*domain.ScheduledTask, error)
	GetTask(ctx context.Context, name string) (*domain.ScheduledTask, error)
	ListTasks(ctx context.Context) ([]*domain.ScheduledTask, error)
	UpdateTaskOutcome(ctx context.Context, taskID string, lastRunAt time.Time, lastStatus string) error
	CreateRun(ctx context.Context, taskID string) (*domain.TaskRun, error)
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, endedAt time.Time, durationMs int64, errMsg string) error
	ListRuns(ctx context.Context, taskID string, limit int) ([]*domain.TaskRun, error)
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type scheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository wraps a pgxpool with the ScheduleRepository interface.
func NewScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepository{pool: pool}
}

// UpsertTask registers a task by name. Re-registering an existing name updates
// its cron expression only.
func (r *scheduleRepository) UpsertTask(ctx context.Context, name, cronExpr string) (*domain.ScheduledTask, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_tasks (id, name, cron_expr, enabled)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (name) DO UPDATE SET cron_expr = EXCLUDED.cron_expr
		RETURNING id, name, cron_expr, enabled, last_run_at, last_status
	`, uuid.New().String(), name, cronExpr)
	return scanTask(row, name)
}

func (r *scheduleRepository) GetTask(ctx context.Context, name string) (*domain.ScheduledTask, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, cron_expr, enabled, last_run_at, last_status
		FROM scheduled_tasks
		WHERE name = $1
	`, name)
	return scanTask(row, name)
}

func (r *scheduleRepository) ListTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, cron_expr, enabled, last_run_at, last_status
		FROM scheduled_tasks
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows, "")
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *scheduleRepository) UpdateTaskOutcome(ctx context.Context, taskID string, lastRunAt time.Time, lastStatus string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks
		SET last_run_at = $1, last_status = $2
		WHERE id = $3
	`, lastRunAt, lastStatus, taskID)
	if err != nil {
		return fmt.Errorf("update task outcome %s: %w", taskID, err)
	}
	return nil
}

func (r *scheduleRepository) CreateRun(ctx context.Context, taskID string) (*domain.TaskRun, error) {
	run := &domain.TaskRun{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_runs (id, task_id, status, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.TaskID, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create task run for %s: %w", taskID, err)
	}
	return run, nil
}

func (r *scheduleRepository) FinishRun(ctx context.Context, runID string, status domain.RunStatus, endedAt time.Time, durationMs int64, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE task_runs
		SET status = $1, ended_at = $2, duration_ms = $3, error = $4
		WHERE id = $5
	`, string(status), endedAt, durationMs, errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish task run %s: %w", runID, err)
	}
	return nil
}

func (r *scheduleRepository) ListRuns(ctx context.Context, taskID string, limit int) ([]*domain.TaskRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, status, started_at, ended_at, duration_ms, error
		FROM task_runs
		WHERE task_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var runs []*domain.TaskRun
	for rows.Next() {
		var (
			run       domain.TaskRun
			statusStr string
			errMsg    *string
		)
		if err := rows.Scan(&run.ID, &run.TaskID, &statusStr, &run.StartedAt, &run.EndedAt, &run.DurationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		run.Status = domain.RunStatus(statusStr)
		if errMsg != nil {
			run.Error = *errMsg
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// PurgeRunsBefore deletes run history older than the cutoff and returns the
// number of rows removed.
func (r *scheduleRepository) PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM task_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge task runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTask(row interface{ Scan(...any) error }, name string) (*domain.ScheduledTask, error) {
	var (
		task       domain.ScheduledTask
		lastStatus *string
	)
	err := row.Scan(&task.ID, &task.Name, &task.CronExpr, &task.Enabled, &task.LastRunAt, &lastStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("scan scheduled task: %w", err)
	}
	if lastStatus != nil {
		task.LastStatus = *lastStatus
	}
	return &task, nil
}
