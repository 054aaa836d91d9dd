// Package embedding implements the outbound client for the embedding
// provider (C1): a pure function, from the core's point of view, mapping a
// query string to a fixed-dimension vector.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobreel-server/internal/apperrors"
)

const defaultModel = "text-embedding-004"

// Client calls an external embedding provider over JSON HTTP.
type Client struct {
	baseURL string
	dim     int
	http    *http.Client
}

// NewClient builds an embedding client bound to baseURL, validating every
// response against the expected dimension dim.
func NewClient(baseURL string, dim int) *Client {
	return &Client{
		baseURL: baseURL,
		dim:     dim,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type embedRequest struct {
	Model     string `json:"model"`
	Content   string `json:"content"`
	TaskType  string `json:"task_type"`
	OutputDim int    `json:"output_dim"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed maps text to a vector of the client's configured dimension. Fails
// with ErrEmbeddingUnavailable on transport error, ErrEmbeddingMalformed if
// the response's vector length differs from the configured dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{
		Model:     defaultModel,
		Content:   text,
		TaskType:  "retrieval_query",
		OutputDim: c.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", apperrors.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperrors.ErrEmbeddingMalformed, err)
	}

	if len(parsed.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d", apperrors.ErrEmbeddingMalformed, c.dim, len(parsed.Embedding))
	}

	return parsed.Embedding, nil
}
