// Package models defines the persisted entities of the search-and-generate
// pipeline: the View ledger and Video catalog (owned by GORM), and the
// GenerationJob record (owned by the raw-SQL queue layer but shared as a
// plain struct wherever callers need to see its shape).
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// VideoStatus is the terminal-or-not status of a Video row.
type VideoStatus string

const (
	VideoStatusPending VideoStatus = "pending"
	VideoStatusReady   VideoStatus = "ready"
)

// Video is created exactly once per video_id (== job_id) when generation
// succeeds. It is never mutated or deleted by the core thereafter.
type Video struct {
	VideoID            string      `gorm:"column:video_id;primaryKey" json:"video_id"`
	Status             VideoStatus `gorm:"column:status;not null;index" json:"status"`
	StorageManifestKey string      `gorm:"column:storage_manifest_key" json:"storage_manifest_key"`
	TemplateID         string      `gorm:"column:template_id" json:"template_id"`
	GenerationJobID    string      `gorm:"column:generation_job_id" json:"generation_job_id"`
	CreatedAt          time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName pins the GORM table name explicitly rather than relying on
// pluralization.
func (Video) TableName() string { return "videos" }

// View records that (UserID, JobID) has been shown to the user at least
// once. Unique on (user_id, job_id); upserted by mark_seen, bulk-deleted by
// reset.
type View struct {
	UserID    string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	JobID     string    `gorm:"column:job_id;primaryKey" json:"job_id"`
	Seen      bool      `gorm:"column:seen;not null;default:true" json:"seen"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (View) TableName() string { return "views" }

// GenerationJobStatus enumerates the queue's lifecycle states. Uploaded and
// Indexed are optional observability-only bookkeeping states with no
// semantic effect on claiming or dedup.
type GenerationJobStatus string

const (
	StatusQueued   GenerationJobStatus = "queued"
	StatusRunning  GenerationJobStatus = "running"
	StatusUploaded GenerationJobStatus = "uploaded"
	StatusIndexed  GenerationJobStatus = "indexed"
	StatusReady    GenerationJobStatus = "ready"
	StatusFailed   GenerationJobStatus = "failed"
)

// GenerationJob is a row of the durable generation queue. It is assembled
// and mutated by the raw-SQL queue package, but shared here as a plain
// struct so coordinator and worker code can pass it around without
// importing the queue's SQL internals.
type GenerationJob struct {
	JobUUID          string              `json:"job_uuid"`
	JobID            string              `json:"job_id"`
	TemplateID       string              `json:"template_id"`
	QueryFingerprint string              `json:"query_fingerprint"`
	UserID           string              `json:"user_id"`
	Status           GenerationJobStatus `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	OutputVideoID    string              `json:"output_video_id,omitempty"`
	RetryCount       int                 `json:"retry_count"`
	WorkerID         *string             `json:"worker_id,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// JobPayload is the read-only shape of a corpus job row the worker's render
// step consults. Payload carries
// the job's opaque, ingestion-authored fields beyond the description the
// renderer needs; the core never writes it, only reads it through.
type JobPayload struct {
	JobID       string
	Active      bool
	Description string
	Payload     JSONObject
}

// JSONObject persists an arbitrary JSON document, used for the job corpus's
// opaque payload field.
type JSONObject map[string]interface{}

func (o JSONObject) Value() (driver.Value, error) {
	if o == nil {
		return "{}", nil
	}
	return json.Marshal(o)
}

func (o *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("models: JSONObject.Scan: unsupported source type")
		}
	}
	return json.Unmarshal(bytes, o)
}
