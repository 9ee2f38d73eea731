package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaj441/aaronos-core/internal/browser"
	"github.com/aaj441/aaronos-core/internal/domain"
)

type fakePlatform struct {
	pingErr error

	sessionCutoff time.Time
	resetCutoff   time.Time
	healthCutoff  time.Time
	backupCutoff  time.Time
	subCutoff     time.Time

	healthChecks []*domain.HealthCheck
	backups      []*domain.BackupRecord
}

func (f *fakePlatform) Ping(context.Context) error { return f.pingErr }

func (f *fakePlatform) PurgeExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.sessionCutoff = now
	return 3, nil
}

func (f *fakePlatform) PurgeExpiredPasswordResets(_ context.Context, now time.Time) (int64, error) {
	f.resetCutoff = now
	return 1, nil
}

func (f *fakePlatform) ExpireLapsedSubscriptions(_ context.Context, now time.Time) (int64, error) {
	f.subCutoff = now
	return 2, nil
}

func (f *fakePlatform) RecordHealthCheck(_ context.Context, check *domain.HealthCheck) error {
	f.healthChecks = append(f.healthChecks, check)
	return nil
}

func (f *fakePlatform) PurgeHealthChecksBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.healthCutoff = cutoff
	return 5, nil
}

func (f *fakePlatform) RecordBackup(_ context.Context, backup *domain.BackupRecord) error {
	f.backups = append(f.backups, backup)
	return nil
}

func (f *fakePlatform) PurgeBackupsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.backupCutoff = cutoff
	return 0, nil
}

type fakeScheduleStore struct {
	runCutoff time.Time
}

func (f *fakeScheduleStore) PurgeRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.runCutoff = cutoff
	return 4, nil
}

type fakeWorkCounter struct {
	archiveCutoff time.Time
}

func (f *fakeWorkCounter) CountCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.archiveCutoff = cutoff
	return 7, nil
}

type okGen struct{ err error }

func (g okGen) Generate(context.Context, string, int) (string, error) { return "pong", g.err }

type stubBrowser struct{ closed bool }

func (b *stubBrowser) Navigate(context.Context, string, time.Duration) (browser.Page, error) {
	return nil, errors.New("not used")
}
func (b *stubBrowser) Close() error { b.closed = true; return nil }

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestTasks(platform *fakePlatform, sched *fakeScheduleStore, works *fakeWorkCounter, gen okGen, browserErr error, backupDir string) (*Tasks, *stubBrowser) {
	b := &stubBrowser{}
	newBrowser := func() (browser.Browser, error) {
		if browserErr != nil {
			return nil, browserErr
		}
		return b, nil
	}
	t := New(platform, sched, works, gen, newBrowser, backupDir, "postgres://unused", slog.New(slog.DiscardHandler))
	t.now = func() time.Time { return fixedNow }
	return t, b
}

func TestDefinitionsCoverEveryTask(t *testing.T) {
	tasks, _ := newTestTasks(&fakePlatform{}, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{}, nil, t.TempDir())
	defs := tasks.Definitions()
	require.Len(t, defs, 8)

	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
		assert.NotNil(t, d.Handler, d.Name)
		assert.NotEmpty(t, d.Cron, d.Name)
	}
	for _, want := range []string{
		"database_backup", "subscription_reconciliation", "session_purge",
		"password_reset_purge", "health_probe", "health_record_purge",
		"task_run_purge", "work_archival",
	} {
		assert.True(t, names[want], want)
	}
}

func TestRetentionCutoffs(t *testing.T) {
	platform := &fakePlatform{}
	sched := &fakeScheduleStore{}
	works := &fakeWorkCounter{}
	tasks, _ := newTestTasks(platform, sched, works, okGen{}, nil, t.TempDir())
	ctx := context.Background()

	require.NoError(t, tasks.PurgeSessions(ctx))
	require.NoError(t, tasks.PurgePasswordResets(ctx))
	require.NoError(t, tasks.ReconcileSubscriptions(ctx))
	require.NoError(t, tasks.PurgeHealthRecords(ctx))
	require.NoError(t, tasks.PurgeTaskRuns(ctx))
	require.NoError(t, tasks.CountArchivalCandidates(ctx))

	assert.Equal(t, fixedNow, platform.sessionCutoff)
	assert.Equal(t, fixedNow, platform.resetCutoff)
	assert.Equal(t, fixedNow, platform.subCutoff)
	assert.Equal(t, fixedNow.Add(-7*24*time.Hour), platform.healthCutoff)
	assert.Equal(t, fixedNow.Add(-30*24*time.Hour), sched.runCutoff)
	assert.Equal(t, fixedNow.Add(-90*24*time.Hour), works.archiveCutoff)
}

func TestProbeHealthHealthy(t *testing.T) {
	platform := &fakePlatform{}
	tasks, b := newTestTasks(platform, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{}, nil, t.TempDir())

	require.NoError(t, tasks.ProbeHealth(context.Background()))
	require.Len(t, platform.healthChecks, 1)
	assert.Equal(t, "healthy", platform.healthChecks[0].Status)
	assert.True(t, b.closed, "probe browser released")
}

func TestProbeHealthDegradedWhenGenerationDown(t *testing.T) {
	platform := &fakePlatform{}
	tasks, _ := newTestTasks(platform, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{err: errors.New("quota exceeded")}, nil, t.TempDir())

	require.NoError(t, tasks.ProbeHealth(context.Background()))
	require.Len(t, platform.healthChecks, 1)
	assert.Equal(t, "degraded", platform.healthChecks[0].Status)
	assert.Contains(t, string(platform.healthChecks[0].Services), "quota exceeded")
}

func TestProbeHealthUnhealthyWhenDatabaseDown(t *testing.T) {
	platform := &fakePlatform{pingErr: errors.New("connection refused")}
	tasks, _ := newTestTasks(platform, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{}, errors.New("no chrome"), t.TempDir())

	require.NoError(t, tasks.ProbeHealth(context.Background()))
	require.Len(t, platform.healthChecks, 1)
	assert.Equal(t, "unhealthy", platform.healthChecks[0].Status)
}

func TestRunBackupRecordsFailure(t *testing.T) {
	platform := &fakePlatform{}
	tasks, _ := newTestTasks(platform, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{}, nil, t.TempDir())
	// pg_dump cannot reach the configured DSN here, so the run must fail but
	// still leave a failed backup record and prune old records.
	err := tasks.RunBackup(context.Background())
	require.Error(t, err)

	require.Len(t, platform.backups, 1)
	assert.Equal(t, "failed", platform.backups[0].Status)
	assert.NotEmpty(t, platform.backups[0].Error)
	assert.Equal(t, fixedNow.Add(-30*24*time.Hour), platform.backupCutoff)
}

func TestPruneBackupsRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "backup-20250101-000000.dump")
	recent := filepath.Join(dir, "backup-20260309-000000.dump")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, recent, unrelated} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := fixedNow.Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	platform := &fakePlatform{}
	tasks, _ := newTestTasks(platform, &fakeScheduleStore{}, &fakeWorkCounter{}, okGen{}, nil, dir)
	tasks.pruneBackups(context.Background(), fixedNow.Add(-30*24*time.Hour))

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old dump removed")
	_, err = os.Stat(recent)
	assert.NoError(t, err, "recent dump kept")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "unrelated file kept")
}
