// Package apperrors collects the sentinel errors the coordinator and worker
// branch on, matching the taxonomy: transient external, contract, data,
// bug, and fatal errors. All are designed to be tested with errors.Is.
package apperrors

import "errors"

var (
	// ErrEmbeddingUnavailable is a transient-external failure: the
	// embedding provider could not be reached. Maps to HTTP 502.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrEmbeddingMalformed is a data error: the embedding response had
	// the wrong dimension or was missing its vector entirely.
	ErrEmbeddingMalformed = errors.New("embedding response malformed")

	// ErrVectorIndexUnavailable signals the vector search adapter had to
	// degrade to its fallback path. Never surfaced as a hard failure by
	// itself.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrDuplicate is a contract error: enqueue was attempted for a
	// (fingerprint, job_id) pair already live in the queue.
	ErrDuplicate = errors.New("generation job already queued for this fingerprint and job")

	// ErrUserAtLimit is a contract error: the user already has
	// MAX_USER_CONCURRENT generations in flight.
	ErrUserAtLimit = errors.New("user has reached the concurrent generation limit")

	// ErrStoreUnreachable is a transient-external failure covering any of
	// the view ledger, video catalog, or queue being unreachable.
	ErrStoreUnreachable = errors.New("store unreachable")

	// ErrJobDescriptionTooShort is a data error: the job corpus payload
	// did not carry a renderable description.
	ErrJobDescriptionTooShort = errors.New("job description is missing or too short to render")

	// ErrNoJobAvailable signals claim() found nothing to hand out; not an
	// error condition for the worker loop, just an empty result.
	ErrNoJobAvailable = errors.New("no generation job available")
)
