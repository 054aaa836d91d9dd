// Package vectorsearch implements the vector search adapter (C2): a
// filtered top-K approximate-nearest-neighbour query over the read-only job
// corpus, with a degrade-to-arbitrary-rows fallback when the index is
// unreachable.
package vectorsearch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/pgvector/pgvector-go"
)

// Candidate is one row the adapter returns: a job id, its similarity score
// in [0,1] (descending), and whatever payload subset the caller asked for.
type Candidate struct {
	JobID       string
	Score       float64
	Description string
}

// Filter is the conjunctive predicate every candidate must satisfy:
// active=true AND job_id NOT IN Excluded.
type Filter struct {
	Excluded []string
}

// Adapter runs filtered top-K queries against the jobs table's pgvector
// column.
type Adapter struct {
	db *sql.DB
}

// New builds an Adapter over an already-open *sql.DB (the raw-SQL handle
// shared with the generation queue).
func New(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// TopK returns up to limit candidates matching filter, ordered by
// descending similarity. numCandidates tunes the index's recall budget
// (ivfflat.probes) where supported; it otherwise has no effect. If the
// underlying connection is unreachable, TopK degrades to the fallback
// described in the component contract: up to limit arbitrary matching rows
// with score=0.5.
func (a *Adapter) TopK(ctx context.Context, queryVec []float32, filter Filter, numCandidates, limit int) ([]Candidate, error) {
	if numCandidates < limit {
		numCandidates = limit
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		log.Printf("vectorsearch: connection unavailable, degrading to fallback: %v", err)
		return a.fallback(ctx, filter, limit)
	}
	defer conn.Close()

	// Best-effort recall tuning; ignored if the index type doesn't
	// recognize the GUC.
	_, _ = conn.ExecContext(ctx, fmt.Sprintf("SET ivfflat.probes = %d", clampProbes(numCandidates)))

	exclusionClause, args := buildExclusion(filter.Excluded, 2)
	query := fmt.Sprintf(`
		SELECT job_id,
		       1 - (embedding <=> $1) AS score,
		       COALESCE(payload->>'description', '') AS description
		FROM jobs
		WHERE active = true %s
		ORDER BY embedding <=> $1
		LIMIT %d
	`, exclusionClause, limit)

	fullArgs := append([]interface{}{pgvector.NewVector(queryVec)}, args...)

	rows, err := conn.QueryContext(ctx, query, fullArgs...)
	if err != nil {
		log.Printf("vectorsearch: query failed, degrading to fallback: %v", err)
		return a.fallback(ctx, filter, limit)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.JobID, &c.Score, &c.Description); err != nil {
			return nil, fmt.Errorf("vectorsearch: scan row: %w", err)
		}
		if c.Score < 0 {
			c.Score = 0
		}
		if c.Score > 1 {
			c.Score = 1
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorsearch: iterate rows: %w", err)
	}

	return out, nil
}

// fallback returns up to limit arbitrary active jobs matching the exclusion
// filter, each with the sentinel score 0.5, per the component's documented
// degradation behaviour.
func (a *Adapter) fallback(ctx context.Context, filter Filter, limit int) ([]Candidate, error) {
	exclusionClause, args := buildExclusion(filter.Excluded, 1)
	query := fmt.Sprintf(`
		SELECT job_id, COALESCE(payload->>'description', '')
		FROM jobs
		WHERE active = true %s
		LIMIT %d
	`, exclusionClause, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorsearch: fallback query failed: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.JobID, &c.Description); err != nil {
			return nil, fmt.Errorf("vectorsearch: fallback scan: %w", err)
		}
		c.Score = 0.5
		out = append(out, c)
	}
	return out, rows.Err()
}

// buildExclusion renders "AND job_id NOT IN (...)" with positional
// placeholders starting at startAt, or an empty clause if there is nothing
// to exclude.
func buildExclusion(excluded []string, startAt int) (string, []interface{}) {
	if len(excluded) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(excluded))
	args := make([]interface{}, len(excluded))
	for i, id := range excluded {
		placeholders[i] = fmt.Sprintf("$%d", startAt+i)
		args[i] = id
	}
	return "AND job_id NOT IN (" + strings.Join(placeholders, ",") + ")", args
}

func clampProbes(n int) int {
	if n < 1 {
		return 1
	}
	if n > 1000 {
		return 1000
	}
	return n
}
