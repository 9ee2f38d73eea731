package domain

import "time"

// RunStatus represents the states a scheduled task run can be in.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// ScheduledTask is a named recurring job definition. Tasks are registered once
// at process start with upsert semantics and live for the process lifetime.
type ScheduledTask struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CronExpr   string     `json:"cron_expr"`
	Enabled    bool       `json:"enabled"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

// TaskRun is one execution instance of a ScheduledTask. At most one RUNNING
// run may exist per task at any instant.
type TaskRun struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// HealthCheck is one recorded probe of the platform's dependencies.
type HealthCheck struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Services  []byte    `json:"services"`
	CheckedAt time.Time `json:"checked_at"`
}

// BackupRecord tracks one database backup attempt.
type BackupRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
