// Package jobs provides read-only access to the external job corpus: the
// core never creates or mutates a Job, but both the vector search adapter
// and the worker's render step need to read a job's payload.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jobreel-server/internal/models"
)

// ErrNotFound is returned when job_id has no corresponding row.
var ErrNotFound = errors.New("jobs: job not found")

// Repository reads job rows from the shared raw-SQL connection.
type Repository struct {
	db *sql.DB
}

// New builds a Repository over an already-open *sql.DB.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get reads a single job's active flag, description, and opaque payload by
// job_id.
func (r *Repository) Get(ctx context.Context, jobID string) (models.JobPayload, error) {
	var p models.JobPayload
	p.JobID = jobID

	row := r.db.QueryRowContext(ctx, `
		SELECT active, COALESCE(payload->>'description', ''), payload
		FROM jobs
		WHERE job_id = $1
	`, jobID)

	if err := row.Scan(&p.Active, &p.Description, &p.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, fmt.Errorf("jobs: get %s: %w", jobID, err)
	}
	return p, nil
}
