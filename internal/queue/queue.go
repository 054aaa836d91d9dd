// Package queue implements the generation queue (C5): a durable store of
// GenerationJob rows with dedup, per-user concurrency limits, TTL expiry,
// retry bookkeeping, and worker leases, guarded entirely by SQL-level
// atomicity.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// Queue wraps the raw-SQL connection backing the generation_jobs table.
type Queue struct {
	db                *sql.DB
	maxUserConcurrent int
}

// New builds a Queue over an already-open *sql.DB, enforcing maxUserConcurrent
// in-flight jobs per user at enqueue time.
func New(db *sql.DB, maxUserConcurrent int) *Queue {
	return &Queue{db: db, maxUserConcurrent: maxUserConcurrent}
}

// EnqueueInput is the caller-supplied shape of a new generation job; server-
// assigned fields (uuid, status, timestamps) are filled in by Enqueue.
type EnqueueInput struct {
	JobID            string
	TemplateID       string
	QueryFingerprint string
	UserID           string
}

// Enqueue inserts a new queued GenerationJob. It fails with
// apperrors.ErrDuplicate if (fingerprint, job_id) already exists in any
// non-failed status, and apperrors.ErrUserAtLimit if the user's active
// count has reached the configured limit. The limit check and the insert
// are not one atomic unit — over-limit-by-one is an accepted soft-quota
// race per the component contract; the dedup check rides a database-level
// partial unique index so it cannot race.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (string, error) {
	var active int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM generation_jobs
		WHERE user_id = $1 AND status IN ('queued', 'running')
	`, in.UserID).Scan(&active)
	if err != nil {
		return "", fmt.Errorf("queue: enqueue: count active for user %s: %w", in.UserID, err)
	}
	if active >= q.maxUserConcurrent {
		return "", apperrors.ErrUserAtLimit
	}

	jobUUID := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO generation_jobs
			(job_uuid, job_id, template_id, query_fingerprint, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', now(), now())
	`, jobUUID, in.JobID, in.TemplateID, in.QueryFingerprint, in.UserID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return "", apperrors.ErrDuplicate
		}
		return "", fmt.Errorf("queue: enqueue: insert: %w", err)
	}

	return jobUUID, nil
}

// Claim atomically selects a job to run: the oldest queued job whose
// created_at is at least 2s old (the grace window that avoids racing an
// enqueuer's not-yet-committed write), falling back to the oldest
// currently-running job whose lease has gone stale. It marks the winner
// running under worker_id and returns it, or apperrors.ErrNoJobAvailable if
// nothing was eligible. A stale job claimed this way has its retry_count
// incremented, matching reset_stale's bookkeeping.
func (q *Queue) Claim(ctx context.Context, workerID string, staleThreshold time.Duration) (*models.GenerationJob, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE generation_jobs
		SET status = 'running',
		    worker_id = $1,
		    started_at = now(),
		    updated_at = now(),
		    retry_count = retry_count + CASE WHEN status = 'running' THEN 1 ELSE 0 END
		WHERE job_uuid = (
			SELECT job_uuid FROM generation_jobs
			WHERE (status = 'queued' AND created_at < now() - interval '2 seconds')
			   OR (status = 'running' AND started_at < now() - ($2 || ' seconds')::interval)
			ORDER BY
				CASE WHEN status = 'queued' THEN 0 ELSE 1 END,
				created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_uuid, job_id, template_id, query_fingerprint, user_id, status,
		          created_at, updated_at, started_at, completed_at, output_video_id,
		          retry_count, worker_id, error
	`, workerID, int(staleThreshold.Seconds()))

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoJobAvailable
		}
		return nil, fmt.Errorf("queue: claim: %w", err)
	}
	return job, nil
}

// TransitionPatch carries the fields that go along with a status change:
// lease clearing on requeue/fail, retry bookkeeping, and terminal fields on
// success.
type TransitionPatch struct {
	ClearLease    bool
	IncRetry      bool
	CompletedAt   *time.Time
	OutputVideoID string
	Error         string
}

// Transition performs a compare-and-set on status: the update only takes
// effect if the row's current status matches expectedFrom. Returns whether
// the transition actually applied.
func (q *Queue) Transition(ctx context.Context, jobUUID string, expectedFrom, to models.GenerationJobStatus, patch TransitionPatch) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = $1,
		    updated_at = now(),
		    worker_id = CASE WHEN $2 THEN NULL ELSE worker_id END,
		    started_at = CASE WHEN $2 THEN NULL ELSE started_at END,
		    retry_count = retry_count + CASE WHEN $3 THEN 1 ELSE 0 END,
		    completed_at = COALESCE($4, completed_at),
		    output_video_id = CASE WHEN $5 <> '' THEN $5 ELSE output_video_id END,
		    error = CASE WHEN $6 <> '' THEN $6 ELSE error END
		WHERE job_uuid = $7 AND status = $8
	`, string(to), patch.ClearLease, patch.IncRetry, patch.CompletedAt, patch.OutputVideoID, patch.Error, jobUUID, string(expectedFrom))
	if err != nil {
		return false, fmt.Errorf("queue: transition %s %s->%s: %w", jobUUID, expectedFrom, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("queue: transition rows affected: %w", err)
	}
	return n == 1, nil
}

// ResetStale returns to queued every job whose lease is older than
// threshold, clearing the lease and incrementing retry_count. Returns the
// number of rows reset.
func (q *Queue) ResetStale(ctx context.Context, threshold time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = 'queued',
		    worker_id = NULL,
		    started_at = NULL,
		    retry_count = retry_count + 1,
		    updated_at = now()
		WHERE status = 'running' AND started_at < now() - ($1 || ' seconds')::interval
	`, int(threshold.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("queue: reset_stale: %w", err)
	}
	return res.RowsAffected()
}

// Expire deletes generation_jobs rows older than ttl, emulating the store's
// documented TTL-on-created_at since the chosen store has no native row
// expiry feature.
func (q *Queue) Expire(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM generation_jobs WHERE created_at < now() - ($1 || ' seconds')::interval
	`, int(ttl.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("queue: expire: %w", err)
	}
	return res.RowsAffected()
}

// GetByID reads a single generation job, or apperrors.ErrNoJobAvailable if
// absent.
func (q *Queue) GetByID(ctx context.Context, jobUUID string) (*models.GenerationJob, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT job_uuid, job_id, template_id, query_fingerprint, user_id, status,
		       created_at, updated_at, started_at, completed_at, output_video_id,
		       retry_count, worker_id, error
		FROM generation_jobs WHERE job_uuid = $1
	`, jobUUID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoJobAvailable
		}
		return nil, fmt.Errorf("queue: get %s: %w", jobUUID, err)
	}
	return job, nil
}

// List returns the most recent generation jobs, newest first, for
// operator/introspection use.
func (q *Queue) List(ctx context.Context, limit int) ([]models.GenerationJob, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT job_uuid, job_id, template_id, query_fingerprint, user_id, status,
		       created_at, updated_at, started_at, completed_at, output_video_id,
		       retry_count, worker_id, error
		FROM generation_jobs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: list: %w", err)
	}
	defer rows.Close()

	var out []models.GenerationJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: list: scan: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.GenerationJob, error) {
	return scanJobRow(row)
}

func scanJobRow(row rowScanner) (*models.GenerationJob, error) {
	var j models.GenerationJob
	var templateID, fingerprint, outputVideoID, errText sql.NullString
	var workerID sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.JobUUID, &j.JobID, &templateID, &fingerprint, &j.UserID, &j.Status,
		&j.CreatedAt, &j.UpdatedAt, &startedAt, &completedAt, &outputVideoID,
		&j.RetryCount, &workerID, &errText,
	)
	if err != nil {
		return nil, err
	}

	j.TemplateID = templateID.String
	j.QueryFingerprint = fingerprint.String
	j.OutputVideoID = outputVideoID.String
	j.Error = errText.String
	if workerID.Valid {
		w := workerID.String
		j.WorkerID = &w
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
