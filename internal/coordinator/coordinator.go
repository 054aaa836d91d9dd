// Package coordinator implements the search coordinator (C6): a stateless
// request handler that orchestrates the embedding client, vector search
// adapter, view ledger, video catalog, and generation queue to answer one
// search request.
package coordinator

import (
	"context"
	"errors"
	"log"
	"math/rand"

	"jobreel-server/internal/apperrors"
	"jobreel-server/internal/config"
	"jobreel-server/internal/fingerprint"
	"jobreel-server/internal/queue"
	"jobreel-server/internal/vectorsearch"
)

// Embedder is the subset of the embedding client the coordinator needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the subset of the vector search adapter the coordinator
// needs.
type VectorSearcher interface {
	TopK(ctx context.Context, queryVec []float32, filter vectorsearch.Filter, numCandidates, limit int) ([]vectorsearch.Candidate, error)
}

// ViewLedger is the subset of the view ledger the coordinator needs.
type ViewLedger interface {
	SeenJobIDs(ctx context.Context, userID string) ([]string, error)
	MarkSeen(ctx context.Context, userID, jobID string) error
	Reset(ctx context.Context, userID string) (int64, error)
}

// VideoCatalog is the subset of the video catalog the coordinator needs.
type VideoCatalog interface {
	ReadyStatusByID(ctx context.Context, videoIDs []string) (map[string]bool, error)
	ArbitraryReady(ctx context.Context, limit int) ([]string, error)
}

// GenerationQueue is the subset of the generation queue the coordinator
// needs.
type GenerationQueue interface {
	Enqueue(ctx context.Context, in queue.EnqueueInput) (string, error)
}

// Notifier is the subset of the wake-nudge notifier the coordinator needs.
// A nil Notifier is valid; Publish is then a no-op.
type Notifier interface {
	Publish(ctx context.Context, jobID string)
}

// Result is the coordinator's answer to one search request.
type Result struct {
	JobIDs              []string
	GenerationTriggered bool
	GenerationJobIDs    []string
}

// Coordinator wires together C1-C5 per the documented search algorithm.
type Coordinator struct {
	embed   Embedder
	search  VectorSearcher
	ledger  ViewLedger
	catalog VideoCatalog
	queue   GenerationQueue
	notify  Notifier
	cfg     config.Config
}

// New builds a Coordinator from its collaborators and the active
// configuration surface.
func New(embed Embedder, search VectorSearcher, ledger ViewLedger, cat VideoCatalog, q GenerationQueue, notify Notifier, cfg config.Config) *Coordinator {
	return &Coordinator{embed: embed, search: search, ledger: ledger, catalog: cat, queue: q, notify: notify, cfg: cfg}
}

// Search runs the full §4.6 algorithm for one (query, user_id) pair.
func (c *Coordinator) Search(ctx context.Context, query, userID string) (Result, error) {
	fp := fingerprint.Compute(query)

	vec, err := c.embed.Embed(ctx, query)
	if err != nil {
		return Result{}, err
	}

	seen, err := c.ledger.SeenJobIDs(ctx, userID)
	if err != nil {
		return Result{}, apperrors.ErrStoreUnreachable
	}

	candidates, err := c.search.TopK(ctx, vec, vectorsearch.Filter{Excluded: seen}, c.cfg.VectorSearchCandidates, c.cfg.VectorSearchLimit)
	if err != nil {
		return Result{}, apperrors.ErrStoreUnreachable
	}

	// Fallback-empty recovery (§4.6 step 5).
	viewsReset := false
	if len(candidates) == 0 && len(seen) > 0 {
		if _, err := c.ledger.Reset(ctx, userID); err != nil {
			return Result{}, apperrors.ErrStoreUnreachable
		}
		viewsReset = true
		candidates, err = c.search.TopK(ctx, vec, vectorsearch.Filter{}, c.cfg.VectorSearchCandidates, c.cfg.VectorSearchLimit)
		if err != nil {
			return Result{}, apperrors.ErrStoreUnreachable
		}
	}

	a, b, cc, err := c.partition(ctx, candidates)
	if err != nil {
		return Result{}, err
	}

	// Available-empty recovery (§4.6 step 7).
	if len(a)+len(b) == 0 && len(seen) > 0 {
		if !viewsReset {
			if _, err := c.ledger.Reset(ctx, userID); err != nil {
				return Result{}, apperrors.ErrStoreUnreachable
			}
		}
		arbitrary, err := c.catalog.ArbitraryReady(ctx, c.cfg.TargetCount)
		if err != nil {
			return Result{}, apperrors.ErrStoreUnreachable
		}
		for _, jobID := range arbitrary {
			_ = c.ledger.MarkSeen(ctx, userID, jobID)
		}
		return Result{JobIDs: arbitrary, GenerationTriggered: false}, nil
	}

	// Normal path (§4.6 steps 8-9).
	result := append(append([]string{}, a...), b...)
	if len(result) > c.cfg.TargetCount {
		result = result[:c.cfg.TargetCount]
	}

	var generationJobIDs []string
	if len(a) < c.cfg.TargetCount {
		deficit := c.cfg.TargetCount - len(a)
		toGenerate := cc
		if len(toGenerate) > deficit {
			toGenerate = toGenerate[:deficit]
		}
		if len(toGenerate) > c.cfg.MaxGeneratePerRequest {
			toGenerate = toGenerate[:c.cfg.MaxGeneratePerRequest]
		}

		for _, jobID := range toGenerate {
			template := c.cfg.VideoTemplates[rand.Intn(len(c.cfg.VideoTemplates))]
			jobUUID, err := c.queue.Enqueue(ctx, queue.EnqueueInput{
				JobID:            jobID,
				TemplateID:       template,
				QueryFingerprint: fp,
				UserID:           userID,
			})
			if err != nil {
				if errors.Is(err, apperrors.ErrDuplicate) || errors.Is(err, apperrors.ErrUserAtLimit) {
					log.Printf("coordinator: enqueue skipped for job %s: %v", jobID, err)
					continue
				}
				log.Printf("coordinator: enqueue failed for job %s: %v", jobID, err)
				continue
			}
			generationJobIDs = append(generationJobIDs, jobUUID)
			if c.notify != nil {
				c.notify.Publish(ctx, jobUUID)
			}
		}
	}

	for _, jobID := range result {
		if err := c.ledger.MarkSeen(ctx, userID, jobID); err != nil {
			log.Printf("coordinator: mark_seen failed for %s/%s: %v", userID, jobID, err)
		}
	}

	return Result{
		JobIDs:              result,
		GenerationTriggered: len(generationJobIDs) > 0,
		GenerationJobIDs:    generationJobIDs,
	}, nil
}

// partition splits candidates into A (high score, ready video), B (low
// score, ready video), and C (high score, no ready video), per §4.6 step 6.
func (c *Coordinator) partition(ctx context.Context, candidates []vectorsearch.Candidate) (a, b, cSet []string, err error) {
	if len(candidates) == 0 {
		return nil, nil, nil, nil
	}

	ids := make([]string, len(candidates))
	for i, cand := range candidates {
		ids[i] = cand.JobID
	}

	ready, err := c.catalog.ReadyStatusByID(ctx, ids)
	if err != nil {
		return nil, nil, nil, apperrors.ErrStoreUnreachable
	}

	for _, cand := range candidates {
		switch {
		case cand.Score >= c.cfg.SimilarityThreshold && ready[cand.JobID]:
			a = append(a, cand.JobID)
		case cand.Score < c.cfg.SimilarityThreshold && ready[cand.JobID]:
			b = append(b, cand.JobID)
		case cand.Score >= c.cfg.SimilarityThreshold && !ready[cand.JobID]:
			cSet = append(cSet, cand.JobID)
		}
	}
	return a, b, cSet, nil
}
