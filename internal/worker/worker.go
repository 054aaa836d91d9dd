// Package worker implements the worker runtime (C7): a long-lived process
// that claims queued generation jobs, invokes the external renderer and
// object store, and transitions job state through the lifecycle described
// in §4.5/§4.7. The stale-lease sweep (C9) runs in-process on the same
// loop per §4.8.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/models"
	"jobreel-server/internal/queue"
)

const minDescriptionLen = 50

// JobReader is the subset of the read-only job corpus the worker needs.
type JobReader interface {
	Get(ctx context.Context, jobID string) (models.JobPayload, error)
}

// Renderer is the subset of the renderer client the worker needs.
type Renderer interface {
	Generate(ctx context.Context, description, outputName, outputPath string) (string, error)
}

// ObjectStore is the subset of the object-store client the worker needs.
type ObjectStore interface {
	UploadBundle(ctx context.Context, hlsDir, videoID string) (manifestKey string, err error)
}

// Catalog is the subset of the video catalog the worker needs.
type Catalog interface {
	Create(ctx context.Context, v models.Video) error
}

// Queue is the subset of the generation queue the worker and sweeper need.
type Queue interface {
	Claim(ctx context.Context, workerID string, staleThreshold time.Duration) (*models.GenerationJob, error)
	Transition(ctx context.Context, jobUUID string, expectedFrom, to models.GenerationJobStatus, patch queue.TransitionPatch) (bool, error)
	ResetStale(ctx context.Context, threshold time.Duration) (int64, error)
	Expire(ctx context.Context, ttl time.Duration) (int64, error)
}

// WakeSource is the subset of the wake-nudge notifier the worker needs: an
// early-wake signal channel so an idle poller doesn't wait out the full
// POLL_INTERVAL_S once a search request has already enqueued work for it.
// A nil WakeSource is valid; the worker then always waits out the full
// poll interval, per the notifier's own documented degrade-to-poll
// behaviour.
type WakeSource interface {
	Wake(ctx context.Context) <-chan struct{}
}

// Config holds the worker-tuning subset of the configuration surface.
type Config struct {
	WorkerID       string
	PollInterval   time.Duration
	SweepInterval  time.Duration
	StaleThreshold time.Duration
	QueueTTL       time.Duration
	MaxRetries     int
	TempDir        string
}

// Runtime wires C7's collaborators together and drives its main loop.
type Runtime struct {
	jobs    JobReader
	render  Renderer
	objects ObjectStore
	catalog Catalog
	queue   Queue
	wake    WakeSource
	cfg     Config
}

// New builds a Runtime from its collaborators and worker configuration.
// wake may be nil, in which case the worker always waits out the full poll
// interval between claims.
func New(jobs JobReader, render Renderer, objects ObjectStore, catalog Catalog, queue Queue, wake WakeSource, cfg Config) *Runtime {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Runtime{jobs: jobs, render: render, objects: objects, catalog: catalog, queue: queue, wake: wake, cfg: cfg}
}

// Run drives the §4.7 main loop until ctx is cancelled: periodically
// sweeping stale leases and expired queue rows (C9), then claiming and
// processing one job at a time. Between claims that find nothing, it waits
// on the poll interval or an early wake nudge, whichever comes first.
func (r *Runtime) Run(ctx context.Context) {
	lastSweep := time.Time{}

	var wake <-chan struct{}
	if r.wake != nil {
		wake = r.wake.Wake(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastSweep) > r.cfg.SweepInterval {
			r.sweep(ctx)
			lastSweep = time.Now()
		}

		job, err := r.queue.Claim(ctx, r.cfg.WorkerID, r.cfg.StaleThreshold)
		if err != nil {
			if errors.Is(err, apperrors.ErrNoJobAvailable) {
				wait(ctx, r.cfg.PollInterval, wake)
				continue
			}
			log.Printf("[worker %s] claim failed: %v", r.cfg.WorkerID, err)
			wait(ctx, r.cfg.PollInterval, wake)
			continue
		}

		r.process(ctx, job)
	}
}

// sweep runs C9: returning lost leases to the queue and deleting
// expired rows, in the same tick, as documented in §4.8.
func (r *Runtime) sweep(ctx context.Context) {
	n, err := r.queue.ResetStale(ctx, r.cfg.StaleThreshold)
	if err != nil {
		log.Printf("[worker %s] sweep: reset_stale failed: %v", r.cfg.WorkerID, err)
	} else if n > 0 {
		log.Printf("[worker %s] sweep: reclaimed %d stale lease(s)", r.cfg.WorkerID, n)
	}

	if n, err := r.queue.Expire(ctx, r.cfg.QueueTTL); err != nil {
		log.Printf("[worker %s] sweep: expire failed: %v", r.cfg.WorkerID, err)
	} else if n > 0 {
		log.Printf("[worker %s] sweep: expired %d queue row(s)", r.cfg.WorkerID, n)
	}
}

// process runs the §4.7 process(job) steps for one claimed job, handling
// failure by retry-or-fail per the documented policy.
func (r *Runtime) process(ctx context.Context, job *models.GenerationJob) {
	log.Printf("[worker %s] processing %s (job_id=%s)", r.cfg.WorkerID, job.JobUUID, job.JobID)

	hlsDir, failErr := r.renderAndUpload(ctx, job)
	if hlsDir != "" {
		defer os.RemoveAll(hlsDir)
	}

	if failErr == nil {
		now := time.Now().UTC()
		ok, err := r.queue.Transition(ctx, job.JobUUID, models.StatusRunning, models.StatusReady, queue.TransitionPatch{
			CompletedAt:   &now,
			OutputVideoID: job.JobID,
		})
		if err != nil {
			log.Printf("[worker %s] transition to ready failed for %s: %v", r.cfg.WorkerID, job.JobUUID, err)
			return
		}
		if !ok {
			log.Printf("[worker %s] %s was no longer running; skipped ready transition", r.cfg.WorkerID, job.JobUUID)
		}
		return
	}

	r.fail(ctx, job, failErr)
}

// renderAndUpload executes steps 1-4 of process(job): read the corpus
// payload, invoke the renderer, upload the bundle, and insert the Video
// row. It returns the local HLS directory (so the caller can clean it up
// even on failure past step 2) and the first error encountered, if any.
func (r *Runtime) renderAndUpload(ctx context.Context, job *models.GenerationJob) (hlsDir string, err error) {
	payload, err := r.jobs.Get(ctx, job.JobID)
	if err != nil {
		return "", fmt.Errorf("worker: read job %s: %w", job.JobID, err)
	}
	if len(payload.Description) < minDescriptionLen {
		return "", fmt.Errorf("%w: job %s has %d chars", apperrors.ErrJobDescriptionTooShort, job.JobID, len(payload.Description))
	}

	outputPath := filepath.Join(r.cfg.TempDir, job.JobID)
	videoPath, err := r.render.Generate(ctx, payload.Description, job.JobID, outputPath)
	if err != nil {
		return "", fmt.Errorf("worker: generate for %s: %w", job.JobID, err)
	}
	hlsDir = videoPath

	manifestKey, err := r.objects.UploadBundle(ctx, hlsDir, job.JobID)
	if err != nil {
		return hlsDir, fmt.Errorf("worker: upload bundle for %s: %w", job.JobID, err)
	}

	err = r.catalog.Create(ctx, models.Video{
		VideoID:            job.JobID,
		Status:             models.VideoStatusReady,
		StorageManifestKey: manifestKey,
		TemplateID:         job.TemplateID,
		GenerationJobID:    job.JobUUID,
	})
	if err != nil {
		return hlsDir, fmt.Errorf("worker: create video row for %s: %w", job.JobID, err)
	}

	return hlsDir, nil
}

// fail applies the §4.7 failure policy: retry while under budget, else
// terminal failure. Every step 1-4 error, including a too-short
// description, goes through the same uniform retry-then-fail path.
func (r *Runtime) fail(ctx context.Context, job *models.GenerationJob, cause error) {
	errText := cause.Error()

	if job.RetryCount >= r.cfg.MaxRetries {
		now := time.Now().UTC()
		if _, err := r.queue.Transition(ctx, job.JobUUID, models.StatusRunning, models.StatusFailed, queue.TransitionPatch{
			CompletedAt: &now,
			Error:       errText,
		}); err != nil {
			log.Printf("[worker %s] transition to failed failed for %s: %v", r.cfg.WorkerID, job.JobUUID, err)
		}
		log.Printf("[worker %s] job %s failed terminally: %v", r.cfg.WorkerID, job.JobUUID, cause)
		return
	}

	if _, err := r.queue.Transition(ctx, job.JobUUID, models.StatusRunning, models.StatusQueued, queue.TransitionPatch{
		ClearLease: true,
		IncRetry:   true,
		Error:      errText,
	}); err != nil {
		log.Printf("[worker %s] transition to queued failed for %s: %v", r.cfg.WorkerID, job.JobUUID, err)
	}
	log.Printf("[worker %s] job %s requeued for retry (%d/%d): %v", r.cfg.WorkerID, job.JobUUID, job.RetryCount+1, r.cfg.MaxRetries, cause)
}

// wait blocks for d, until ctx is cancelled, or until a wake nudge arrives,
// whichever comes first. wake may be nil, in which case it is simply never
// ready and the full interval elapses.
func wait(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-wake:
	}
}
