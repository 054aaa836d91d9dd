package database

import (
	"database/sql"
	"fmt"
)

// coreSchema provisions the raw-SQL-owned tables: the read-only job corpus
// (with its pgvector embedding column) and the generation queue. It is
// idempotent and safe to run on every startup.
const coreSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS jobs (
	job_id      TEXT PRIMARY KEY,
	active      BOOLEAN NOT NULL DEFAULT true,
	embedding   vector(768),
	payload     JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS generation_jobs (
	job_uuid           UUID PRIMARY KEY,
	job_id             TEXT NOT NULL,
	template_id        TEXT NOT NULL,
	query_fingerprint  TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'queued',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	output_video_id    TEXT,
	retry_count        INTEGER NOT NULL DEFAULT 0,
	worker_id          TEXT,
	error              TEXT
);

CREATE INDEX IF NOT EXISTS idx_generation_jobs_status_created
	ON generation_jobs (status, created_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_generation_jobs_fp_job_live
	ON generation_jobs (query_fingerprint, job_id)
	WHERE status <> 'failed';

CREATE INDEX IF NOT EXISTS idx_generation_jobs_user_status
	ON generation_jobs (user_id, status);
`

// ApplyCoreSchema runs the raw-SQL schema for the job corpus and generation
// queue. GORM's AutoMigrate handles the View and Video tables separately.
func ApplyCoreSchema(sqlDB *sql.DB) error {
	if _, err := sqlDB.Exec(coreSchema); err != nil {
		return fmt.Errorf("database: apply core schema: %w", err)
	}
	return nil
}
