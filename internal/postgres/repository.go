package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aaj441/aaronos-core/internal/domain"
)

// WorkUpdate carries the mutable fields of a work record. Nil fields are
// left untouched.
type WorkUpdate struct {
	Status      *domain.WorkStatus
	Progress    *int
	Error       *string
	Result      json.RawMessage
	CompletedAt *time.Time
}

// WorkRepository abstracts all database access for work records.
type WorkRepository interface {
	Create(ctx context.Context, work *domain.WorkRecord) error
	Update(ctx context.Context, id string, upd WorkUpdate) error
	GetByID(ctx context.Context, id string) (*domain.WorkRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.WorkRecord, error)
	CountCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type workRepository struct {
	pool *pgxpool.Pool
}

// NewWorkRepository wraps a pgxpool with the WorkRepository interface.
func NewWorkRepository(pool *pgxpool.Pool) WorkRepository {
	return &workRepository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *workRepository) Create(ctx context.Context, work *domain.WorkRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO work_records
			(id, kind, owner_id, status, progress, error, result, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		work.ID, string(work.Kind), work.OwnerID, string(work.Status),
		work.Progress, work.Error, work.Result, work.CreatedAt, work.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create work %s: %w", work.ID, err)
	}
	return nil
}

func (r *workRepository) Update(ctx context.Context, id string, upd WorkUpdate) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		UPDATE work_records
		SET status       = COALESCE($1, status),
		    progress     = COALESCE($2, progress),
		    error        = COALESCE($3, error),
		    result       = COALESCE($4, result),
		    completed_at = COALESCE($5, completed_at),
		    updated_at   = $6
		WHERE id = $7
	`,
		statusArg(upd.Status), upd.Progress, upd.Error, upd.Result, upd.CompletedAt, now, id,
	)
	if err != nil {
		return fmt.Errorf("update work %s: %w", id, err)
	}
	return nil
}

func statusArg(s *domain.WorkStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func (r *workRepository) GetByID(ctx context.Context, id string) (*domain.WorkRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, owner_id, status, progress, error, result,
		       created_at, updated_at, completed_at
		FROM work_records
		WHERE id = $1
	`, id)
	return scanWork(row, id)
}

func (r *workRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.WorkRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, owner_id, status, progress, error, result,
		       created_at, updated_at, completed_at
		FROM work_records
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list work for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var works []*domain.WorkRecord
	for rows.Next() {
		w, err := scanWork(rows, "")
		if err != nil {
			return nil, err
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

// CountCompletedBefore counts archival candidates: completed work whose
// terminal timestamp is older than the cutoff.
func (r *workRepository) CountCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM work_records
		WHERE status = $1 AND completed_at < $2
	`, string(domain.WorkCompleted), cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archival candidates: %w", err)
	}
	return n, nil
}

// scanWork reads a work record row from any pgx row type.
func scanWork(row interface{ Scan(...any) error }, id string) (*domain.WorkRecord, error) {
	var (
		work      domain.WorkRecord
		kindStr   string
		statusStr string
		errMsg    *string
	)
	err := row.Scan(
		&work.ID, &kindStr, &work.OwnerID, &statusStr, &work.Progress,
		&errMsg, &work.Result, &work.CreatedAt, &work.UpdatedAt, &work.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.WorkNotFoundError{WorkID: id}
		}
		return nil, fmt.Errorf("scan work record: %w", err)
	}
	work.Kind = domain.WorkKind(kindStr)
	work.Status = domain.WorkStatus(statusStr)
	if errMsg != nil {
		work.Error = *errMsg
	}
	return &work, nil
}

// NewID returns a fresh work record identifier.
func NewID() string { return uuid.New().String() }
