package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aaj441/aaronos-core/internal/domain"
)

const backupTimeout = 10 * time.Minute

// RunBackup dumps the database to the backup directory and records the
// attempt. Old backup files and records are pruned on every run, so a failed
// backup never blocks the next one.
func (t *Tasks) RunBackup(ctx context.Context) error {
	now := t.now().UTC()
	filename := fmt.Sprintf("backup-%s.dump", now.Format("20060102-150405"))
	path := filepath.Join(t.backupDir, filename)

	if err := os.MkdirAll(t.backupDir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	record := &domain.BackupRecord{Filename: filename, Status: "success", CreatedAt: now}
	dumpErr := t.dump(ctx, path)
	if dumpErr != nil {
		record.Status = "failed"
		record.Error = dumpErr.Error()
		_ = os.Remove(path)
	} else if info, err := os.Stat(path); err == nil {
		record.SizeBytes = info.Size()
	}

	if err := t.platform.RecordBackup(ctx, record); err != nil {
		t.logger.Error("failed to record backup", slog.String("error", err.Error()))
	}

	t.pruneBackups(ctx, now.Add(-backupRetention))

	if dumpErr != nil {
		return dumpErr
	}
	t.logger.Info("database backup written",
		slog.String("file", filename),
		slog.Int64("size_bytes", record.SizeBytes),
	)
	return nil
}

func (t *Tasks) dump(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, backupTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pg_dump", "--format=custom", "--file", path, t.databaseURL)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// pruneBackups removes dump files and records older than the cutoff.
func (t *Tasks) pruneBackups(ctx context.Context, cutoff time.Time) {
	if n, err := t.platform.PurgeBackupsBefore(ctx, cutoff); err != nil {
		t.logger.Error("failed to purge backup records", slog.String("error", err.Error()))
	} else if n > 0 {
		t.logger.Info("purged old backup records", slog.Int64("count", n))
	}

	entries, err := os.ReadDir(t.backupDir)
	if err != nil {
		t.logger.Error("failed to read backup dir", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(t.backupDir, entry.Name())); err != nil {
			t.logger.Error("failed to remove old backup file",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
