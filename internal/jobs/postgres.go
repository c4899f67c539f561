package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/harunnryd/autosend/internal/errors"

	"github.com/lib/pq"
)

const jobColumns = `id, idempotency_key, job_type, workspace_id, lead_id, trigger_message_id, draft_id,
	status, run_at, attempt_count, max_attempts, locked_until, last_error, result, payload, created_at, updated_at`

// PostgresStore keeps jobs in auto_send_jobs. UNIQUE(idempotency_key) makes
// Create safe across replicas.
type PostgresStore struct{ db *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Create(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if job.Status == "" {
		job.Status = StatusPending
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auto_send_jobs (id, idempotency_key, job_type, workspace_id, lead_id, trigger_message_id,
			draft_id, status, run_at, attempt_count, max_attempts, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
	`, job.ID, job.IdempotencyKey, job.Type, job.WorkspaceID, job.LeadID, job.TriggerMessageID,
		job.DraftID, string(job.Status), job.RunAt.UTC(), job.MaxAttempts, payload)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job %s: %w", job.IdempotencyKey, apperrors.ErrCollision)
		}
		return fmt.Errorf("insert job: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", job.IdempotencyKey, apperrors.ErrCollision)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM auto_send_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job " + id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Claim moves a due pending job, or a running job whose lease expired, to
// running and bumps its attempt count in one statement.
func (s *PostgresStore) Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*Job, error) {
	now = now.UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE auto_send_jobs
		SET status = 'running', attempt_count = attempt_count + 1, locked_until = $3, updated_at = $2
		WHERE id = $1
		  AND ((status = 'pending' AND run_at <= $2) OR (status = 'running' AND locked_until < $2))
		RETURNING `+jobColumns, id, now, now.Add(lease))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, status Status, detail string) error {
	if !status.Terminal() {
		return apperrors.InvalidInput(fmt.Sprintf("status %q is not terminal", status))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE auto_send_jobs
		SET status = $2, result = $3,
		    last_error = CASE WHEN $2 = 'errored' THEN $3 ELSE last_error END,
		    locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')
	`, id, string(status), detail)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, id string, detail string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE auto_send_jobs
		SET status = 'pending', locked_until = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'running'
	`, id, detail)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, apperrors.ErrNotClaimable)
	}
	return nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM auto_send_jobs
		WHERE (status = 'pending' AND run_at <= $1) OR (status = 'running' AND locked_until < $1)
		ORDER BY run_at
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if f.Status != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+jobColumns+` FROM auto_send_jobs WHERE status = $1 ORDER BY run_at DESC LIMIT $2
		`, string(f.Status), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+jobColumns+` FROM auto_send_jobs ORDER BY run_at DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		status      string
		lockedUntil sql.NullTime
		payload     []byte
	)
	if err := row.Scan(&job.ID, &job.IdempotencyKey, &job.Type, &job.WorkspaceID, &job.LeadID,
		&job.TriggerMessageID, &job.DraftID, &status, &job.RunAt, &job.AttemptCount, &job.MaxAttempts,
		&lockedUntil, &job.LastError, &job.Result, &payload, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		job.LockedUntil = &t
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	return &job, nil
}

func collect(rows *sql.Rows) ([]Job, error) {
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
