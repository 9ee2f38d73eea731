// Package maintenance holds the recurring platform upkeep tasks the scheduler
// dispatches: backups, reconciliation, retention purges, and health probes.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/aaj441/aaronos-core/internal/browser"
	"github.com/aaj441/aaronos-core/internal/llm"
	"github.com/aaj441/aaronos-core/internal/postgres"
)

// Retention cutoffs per task.
const (
	healthRetention  = 7 * 24 * time.Hour
	runRetention     = 30 * 24 * time.Hour
	backupRetention  = 30 * 24 * time.Hour
	archiveThreshold = 90 * 24 * time.Hour
)

// Definition binds one maintenance handler to its cron trigger.
type Definition struct {
	Name    string
	Cron    string
	Handler func(ctx context.Context) error
}

// RunPurger trims scheduler run history.
type RunPurger interface {
	PurgeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WorkCounter counts completed work eligible for archival.
type WorkCounter interface {
	CountCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tasks owns the dependencies shared by all maintenance handlers.
type Tasks struct {
	platform    postgres.PlatformRepository
	schedule    RunPurger
	works       WorkCounter
	gen         llm.Generator
	newBrowser  func() (browser.Browser, error)
	backupDir   string
	databaseURL string
	logger      *slog.Logger

	now func() time.Time
}

// New constructs the maintenance task set.
func New(
	platform postgres.PlatformRepository,
	schedule RunPurger,
	works WorkCounter,
	gen llm.Generator,
	newBrowser func() (browser.Browser, error),
	backupDir, databaseURL string,
	logger *slog.Logger,
) *Tasks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tasks{
		platform:    platform,
		schedule:    schedule,
		works:       works,
		gen:         gen,
		newBrowser:  newBrowser,
		backupDir:   backupDir,
		databaseURL: databaseURL,
		logger:      logger,
		now:         time.Now,
	}
}

// Definitions lists every maintenance task with its trigger.
func (t *Tasks) Definitions() []Definition {
	return []Definition{
		{Name: "database_backup", Cron: "0 3 * * *", Handler: t.RunBackup},
		{Name: "subscription_reconciliation", Cron: "0 * * * *", Handler: t.ReconcileSubscriptions},
		{Name: "session_purge", Cron: "0 */6 * * *", Handler: t.PurgeSessions},
		{Name: "password_reset_purge", Cron: "30 3 * * *", Handler: t.PurgePasswordResets},
		{Name: "health_probe", Cron: "*/5 * * * *", Handler: t.ProbeHealth},
		{Name: "health_record_purge", Cron: "15 4 * * *", Handler: t.PurgeHealthRecords},
		{Name: "task_run_purge", Cron: "0 5 * * 0", Handler: t.PurgeTaskRuns},
		{Name: "work_archival", Cron: "45 4 * * *", Handler: t.CountArchivalCandidates},
	}
}

// ReconcileSubscriptions expires subscriptions whose billing period lapsed.
func (t *Tasks) ReconcileSubscriptions(ctx context.Context) error {
	n, err := t.platform.ExpireLapsedSubscriptions(ctx, t.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Info("expired lapsed subscriptions", slog.Int64("count", n))
	}
	return nil
}

// PurgeSessions removes sessions past their expiry.
func (t *Tasks) PurgeSessions(ctx context.Context) error {
	n, err := t.platform.PurgeExpiredSessions(ctx, t.now().UTC())
	if err != nil {
		return err
	}
	t.logger.Info("purged expired sessions", slog.Int64("count", n))
	return nil
}

// PurgePasswordResets removes reset tokens past their expiry.
func (t *Tasks) PurgePasswordResets(ctx context.Context) error {
	n, err := t.platform.PurgeExpiredPasswordResets(ctx, t.now().UTC())
	if err != nil {
		return err
	}
	t.logger.Info("purged expired password resets", slog.Int64("count", n))
	return nil
}

// PurgeHealthRecords trims probe history older than seven days.
func (t *Tasks) PurgeHealthRecords(ctx context.Context) error {
	n, err := t.platform.PurgeHealthChecksBefore(ctx, t.now().UTC().Add(-healthRetention))
	if err != nil {
		return err
	}
	t.logger.Info("purged old health records", slog.Int64("count", n))
	return nil
}

// PurgeTaskRuns trims scheduler run history older than thirty days.
func (t *Tasks) PurgeTaskRuns(ctx context.Context) error {
	n, err := t.schedule.PurgeRunsBefore(ctx, t.now().UTC().Add(-runRetention))
	if err != nil {
		return err
	}
	t.logger.Info("purged old task runs", slog.Int64("count", n))
	return nil
}

// CountArchivalCandidates reports completed work older than ninety days.
// Archival itself is deferred: records are counted, not moved.
func (t *Tasks) CountArchivalCandidates(ctx context.Context) error {
	n, err := t.works.CountCompletedBefore(ctx, t.now().UTC().Add(-archiveThreshold))
	if err != nil {
		return err
	}
	t.logger.Info("archival candidates counted", slog.Int64("count", n))
	return nil
}
