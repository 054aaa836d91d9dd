package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/models"
	"jobreel-server/internal/queue"
)

type fakeJobReader struct {
	payload models.JobPayload
	err     error
}

func (f fakeJobReader) Get(ctx context.Context, jobID string) (models.JobPayload, error) {
	return f.payload, f.err
}

type fakeRenderer struct {
	videoPath string
	err       error
}

func (f fakeRenderer) Generate(ctx context.Context, description, outputName, outputPath string) (string, error) {
	return f.videoPath, f.err
}

type fakeObjectStore struct {
	manifestKey string
	err         error
	calledWith  string
}

func (f *fakeObjectStore) UploadBundle(ctx context.Context, hlsDir, videoID string) (string, error) {
	f.calledWith = hlsDir
	return f.manifestKey, f.err
}

type fakeCatalog struct {
	created []models.Video
	err     error
}

func (f *fakeCatalog) Create(ctx context.Context, v models.Video) error {
	f.created = append(f.created, v)
	return f.err
}

type fakeQueue struct {
	transitions []transitionCall
	resetStaleN int64
	expireN     int64
	claimCalls  int
}

type transitionCall struct {
	uuid         string
	from, to     models.GenerationJobStatus
	patch        queue.TransitionPatch
}

func (f *fakeQueue) Claim(ctx context.Context, workerID string, staleThreshold time.Duration) (*models.GenerationJob, error) {
	f.claimCalls++
	return nil, apperrors.ErrNoJobAvailable
}

func (f *fakeQueue) Transition(ctx context.Context, jobUUID string, from, to models.GenerationJobStatus, patch queue.TransitionPatch) (bool, error) {
	f.transitions = append(f.transitions, transitionCall{uuid: jobUUID, from: from, to: to, patch: patch})
	return true, nil
}

func (f *fakeQueue) ResetStale(ctx context.Context, threshold time.Duration) (int64, error) {
	return f.resetStaleN, nil
}

func (f *fakeQueue) Expire(ctx context.Context, ttl time.Duration) (int64, error) {
	return f.expireN, nil
}

func baseJob() *models.GenerationJob {
	return &models.GenerationJob{
		JobUUID:    "uuid-1",
		JobID:      "42",
		TemplateID: "family_guy",
		RetryCount: 0,
	}
}

func TestProcess_SuccessTransitionsToReady(t *testing.T) {
	reader := fakeJobReader{payload: models.JobPayload{JobID: "42", Active: true, Description: longDescription()}}
	renderer := fakeRenderer{videoPath: "/tmp/out/42"}
	store := &fakeObjectStore{manifestKey: "hls/42/master.m3u8"}
	cat := &fakeCatalog{}
	q := &fakeQueue{}

	r := New(reader, renderer, store, cat, q, nil, Config{WorkerID: "w1", MaxRetries: 3, TempDir: "/tmp"})
	r.process(context.Background(), baseJob())

	if len(cat.created) != 1 || cat.created[0].VideoID != "42" {
		t.Fatalf("expected a Video row created for job 42, got %+v", cat.created)
	}
	if store.calledWith != "/tmp/out/42" {
		t.Fatalf("expected upload over the bundle dir, got %q", store.calledWith)
	}
	if len(q.transitions) != 1 || q.transitions[0].to != models.StatusReady {
		t.Fatalf("expected a single running->ready transition, got %+v", q.transitions)
	}
}

func TestProcess_ShortDescriptionRequeuesUnderRetryBudget(t *testing.T) {
	reader := fakeJobReader{payload: models.JobPayload{JobID: "42", Active: true, Description: "too short"}}
	q := &fakeQueue{}

	r := New(reader, fakeRenderer{}, &fakeObjectStore{}, &fakeCatalog{}, q, nil, Config{WorkerID: "w1", MaxRetries: 3, TempDir: "/tmp"})
	job := baseJob()
	job.RetryCount = 0
	r.process(context.Background(), job)

	if len(q.transitions) != 1 {
		t.Fatalf("expected exactly one transition, got %+v", q.transitions)
	}
	got := q.transitions[0]
	if got.to != models.StatusQueued || !got.patch.ClearLease || !got.patch.IncRetry {
		t.Fatalf("expected running->queued with lease cleared and retry incremented like any other step 1-4 failure, got %+v", got)
	}
}

func TestProcess_ShortDescriptionAtRetryBudgetFails(t *testing.T) {
	reader := fakeJobReader{payload: models.JobPayload{JobID: "42", Active: true, Description: "too short"}}
	q := &fakeQueue{}

	r := New(reader, fakeRenderer{}, &fakeObjectStore{}, &fakeCatalog{}, q, nil, Config{WorkerID: "w1", MaxRetries: 3, TempDir: "/tmp"})
	job := baseJob()
	job.RetryCount = 3
	r.process(context.Background(), job)

	if len(q.transitions) != 1 || q.transitions[0].to != models.StatusFailed {
		t.Fatalf("expected running->failed once retry_count has reached MAX_RETRIES, got %+v", q.transitions)
	}
}

func TestProcess_RendererErrorRequeuesUnderRetryBudget(t *testing.T) {
	reader := fakeJobReader{payload: models.JobPayload{JobID: "42", Active: true, Description: longDescription()}}
	renderer := fakeRenderer{err: errors.New("renderer: timeout")}
	q := &fakeQueue{}

	r := New(reader, renderer, &fakeObjectStore{}, &fakeCatalog{}, q, nil, Config{WorkerID: "w1", MaxRetries: 3, TempDir: "/tmp"})
	job := baseJob()
	job.RetryCount = 1
	r.process(context.Background(), job)

	if len(q.transitions) != 1 {
		t.Fatalf("expected exactly one transition, got %+v", q.transitions)
	}
	got := q.transitions[0]
	if got.to != models.StatusQueued || !got.patch.ClearLease || !got.patch.IncRetry {
		t.Fatalf("expected running->queued with lease cleared and retry incremented, got %+v", got)
	}
}

func TestProcess_RendererErrorAtRetryBudgetFails(t *testing.T) {
	reader := fakeJobReader{payload: models.JobPayload{JobID: "42", Active: true, Description: longDescription()}}
	renderer := fakeRenderer{err: errors.New("renderer: timeout")}
	q := &fakeQueue{}

	r := New(reader, renderer, &fakeObjectStore{}, &fakeCatalog{}, q, nil, Config{WorkerID: "w1", MaxRetries: 3, TempDir: "/tmp"})
	job := baseJob()
	job.RetryCount = 3
	r.process(context.Background(), job)

	if len(q.transitions) != 1 || q.transitions[0].to != models.StatusFailed {
		t.Fatalf("expected running->failed once retry_count has reached MAX_RETRIES, got %+v", q.transitions)
	}
}

func TestSweep_ReportsResetAndExpireCounts(t *testing.T) {
	q := &fakeQueue{resetStaleN: 2, expireN: 5}
	r := New(fakeJobReader{}, fakeRenderer{}, &fakeObjectStore{}, &fakeCatalog{}, q, nil, Config{WorkerID: "w1"})
	r.sweep(context.Background())
}

func TestWait_WakeNudgeShortCutsPollInterval(t *testing.T) {
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	start := time.Now()
	wait(context.Background(), time.Hour, wake)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected wait to return promptly on wake nudge, took %v", elapsed)
	}
}

func TestWait_NilWakeChannelWaitsOutPollInterval(t *testing.T) {
	start := time.Now()
	wait(context.Background(), 20*time.Millisecond, nil)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected wait to block for the full poll interval with no wake source, took %v", elapsed)
	}
}

type fakeWakeSource struct {
	ch chan struct{}
}

func (f *fakeWakeSource) Wake(ctx context.Context) <-chan struct{} {
	return f.ch
}

func TestRun_ClaimsAgainAfterWakeNudgeInsteadOfWaitingFullInterval(t *testing.T) {
	q := &fakeQueue{}
	wake := &fakeWakeSource{ch: make(chan struct{}, 1)}
	wake.ch <- struct{}{}

	r := New(fakeJobReader{}, fakeRenderer{}, &fakeObjectStore{}, &fakeCatalog{}, q, wake, Config{
		WorkerID:      "w1",
		PollInterval:  time.Hour,
		SweepInterval: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if q.claimCalls < 2 {
		t.Fatalf("expected claim to be retried after the wake nudge instead of waiting out PollInterval, got %d calls", q.claimCalls)
	}
}

func longDescription() string {
	s := ""
	for len(s) < 80 {
		s += "senior backend engineer role with significant python experience. "
	}
	return s
}
