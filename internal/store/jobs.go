// internal/store/jobs.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pulss-notifications/internal/models"
)

const jobColumns = `id, tenant_id, recipient_id, recipient_type, recipient_addr, type_code, channel,
	rendered_subject, rendered_body, status, attempt_count, max_attempts,
	next_attempt_at, claimed_by, claimed_at, last_error, cancel_reason,
	created_at, updated_at`

// JobStore persists notification jobs. All mutation goes through
// claim-then-update with a status guard so two workers can never both move
// the same job out of pending.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Insert persists a freshly enqueued job with whatever initial status the
// pipeline decided (pending, cancelled or failed).
func (s *JobStore) Insert(ctx context.Context, job *models.NotificationJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_jobs
			(id, tenant_id, recipient_id, recipient_type, recipient_addr, type_code, channel,
			 rendered_subject, rendered_body, status, attempt_count, max_attempts,
			 next_attempt_at, last_error, cancel_reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$16)`,
		job.ID, job.TenantID, job.RecipientID, job.RecipientType, job.RecipientAddr,
		job.TypeCode, string(job.Channel), job.RenderedSubject, job.RenderedBody,
		string(job.Status), job.AttemptCount, job.MaxAttempts,
		job.NextAttemptAt, job.LastError, job.CancelReason, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due pending jobs for workerID.
// Attempt counting happens here: a claim is the start of an attempt. SKIP
// LOCKED lets concurrent workers claim disjoint batches.
func (s *JobStore) ClaimDue(ctx context.Context, workerID string, limit int, now time.Time) ([]*models.NotificationJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_jobs SET
			status = 'sending',
			attempt_count = attempt_count + 1,
			claimed_by = $1,
			claimed_at = $2,
			updated_at = $2
		WHERE id IN (
			SELECT id FROM notification_jobs
			WHERE status = 'pending' AND next_attempt_at <= $2
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		workerID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Release puts a claimed job back to pending without recording an attempt
// (quiet-hours deferral). The attempt counted at claim time is undone.
func (s *JobStore) Release(ctx context.Context, jobID string, nextAttemptAt time.Time) error {
	return s.guardedUpdate(ctx, `
		UPDATE notification_jobs SET
			status = 'pending',
			attempt_count = attempt_count - 1,
			next_attempt_at = $2,
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'sending'`,
		jobID, nextAttemptAt)
}

// Retry schedules another attempt after a transient failure.
func (s *JobStore) Retry(ctx context.Context, jobID string, nextAttemptAt time.Time, lastError string) error {
	return s.guardedUpdate(ctx, `
		UPDATE notification_jobs SET
			status = 'pending',
			next_attempt_at = $2,
			last_error = $3,
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'sending'`,
		jobID, nextAttemptAt, lastError)
}

// MarkDelivered moves a sending job to its success terminal state.
func (s *JobStore) MarkDelivered(ctx context.Context, jobID string) error {
	return s.guardedUpdate(ctx, `
		UPDATE notification_jobs SET
			status = 'delivered',
			last_error = '',
			updated_at = now()
		WHERE id = $1 AND status = 'sending'`,
		jobID)
}

// MarkFailed moves a sending job to its failure terminal state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, lastError string) error {
	return s.guardedUpdate(ctx, `
		UPDATE notification_jobs SET
			status = 'failed',
			last_error = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'sending'`,
		jobID, lastError)
}

// Cancel cancels a job. Only pending jobs can be cancelled; an in-flight
// attempt is never aborted. Returns sql.ErrNoRows when the job already left
// pending.
func (s *JobStore) Cancel(ctx context.Context, tenantID, jobID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs SET
			status = 'cancelled',
			cancel_reason = $3,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'`,
		jobID, tenantID, reason)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReapStuck requeues jobs stuck in sending past the claim TTL (worker crash
// recovery). The interrupted attempt is not re-counted.
func (s *JobStore) ReapStuck(ctx context.Context, claimTTL time.Duration, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_jobs SET
			status = 'pending',
			attempt_count = attempt_count - 1,
			next_attempt_at = $1,
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = $1
		WHERE status = 'sending' AND claimed_at < $2`,
		now, now.Add(-claimTTL))
	if err != nil {
		return 0, fmt.Errorf("reap stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// Get fetches one job scoped to a tenant.
func (s *JobStore) Get(ctx context.Context, tenantID, jobID string) (*models.NotificationJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs
		WHERE id = $1 AND tenant_id = $2`,
		jobID, tenantID)
	return scanJob(row)
}

// ListFilter narrows a job listing.
type ListFilter struct {
	RecipientID string
	Channel     models.Channel
	Status      models.JobStatus
	Limit       int
	Offset      int
}

// List returns jobs for a tenant, newest first.
func (s *JobStore) List(ctx context.Context, tenantID string, filter ListFilter) ([]*models.NotificationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		query += fmt.Sprintf(" AND recipient_id = $%d", len(args))
	}
	if filter.Channel != "" {
		args = append(args, string(filter.Channel))
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (s *JobStore) guardedUpdate(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.NotificationJob, error) {
	var job models.NotificationJob
	var channel, status string
	var claimedBy, lastError, cancelReason sql.NullString
	var claimedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.TenantID, &job.RecipientID, &job.RecipientType, &job.RecipientAddr,
		&job.TypeCode, &channel, &job.RenderedSubject, &job.RenderedBody,
		&status, &job.AttemptCount, &job.MaxAttempts, &job.NextAttemptAt,
		&claimedBy, &claimedAt, &lastError, &cancelReason,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Channel = models.Channel(channel)
	job.Status = models.JobStatus(status)
	job.ClaimedBy = claimedBy.String
	job.LastError = lastError.String
	job.CancelReason = cancelReason.String
	if claimedAt.Valid {
		t := claimedAt.Time
		job.ClaimedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*models.NotificationJob, error) {
	var jobs []*models.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
