package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaj441/aaronos-core/internal/domain"
)

// PlatformRepository covers the shared platform tables the maintenance tasks
// operate on: sessions, password resets, subscriptions, health checks, and
// backup records.
type PlatformRepository interface {
	Ping(ctx context.Context) error
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	PurgeExpiredPasswordResets(ctx context.Context, now time.Time) (int64, error)
	ExpireLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error)
	RecordHealthCheck(ctx context.Context, check *domain.HealthCheck) error
	PurgeHealthChecksBefore(ctx context.Context, cutoff time.Time) (int64, error)
	RecordBackup(ctx context.Context, backup *domain.BackupRecord) error
	PurgeBackupsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type platformRepository struct {
	pool *pgxpool.Pool
}

// NewPlatformRepository wraps a pgxpool with the PlatformRepository interface.
func NewPlatformRepository(pool *pgxpool.Pool) PlatformRepository {
	return &platformRepository{pool: pool}
}

func (r *platformRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *platformRepository) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *platformRepository) PurgeExpiredPasswordResets(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired password resets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireLapsedSubscriptions marks active subscriptions whose billing period
// ended as expired.
func (r *platformRepository) ExpireLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND current_period_end < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *platformRepository) RecordHealthCheck(ctx context.Context, check *domain.HealthCheck) error {
	if check.ID == "" {
		check.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO health_checks (id, status, services, checked_at)
		VALUES ($1, $2, $3, $4)
	`, check.ID, check.Status, check.Services, check.CheckedAt)
	if err != nil {
		return fmt.Errorf("record health check: %w", err)
	}
	return nil
}

func (r *platformRepository) PurgeHealthChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM health_checks WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge health checks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *platformRepository) RecordBackup(ctx context.Context, backup *domain.BackupRecord) error {
	if backup.ID == "" {
		backup.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO database_backups (id, filename, size_bytes, status, error, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, backup.ID, backup.Filename, backup.SizeBytes, backup.Status, backup.Error, backup.CreatedAt)
	if err != nil {
		return fmt.Errorf("record backup: %w", err)
	}
	return nil
}

func (r *platformRepository) PurgeBackupsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM database_backups WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge backup records: %w", err)
	}
	return tag.RowsAffected(), nil
}
