// Package renderer implements the outbound client for the video renderer
// (step 2 of C7's process(job)): a JSON-over-HTTP RPC that turns a job
// description into a local filesystem HLS bundle. The renderer itself is
// an external black box; this package only speaks its wire contract.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls an external renderer over JSON HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a renderer client bound to baseURL with the given
// per-call timeout (recommended: 5 minutes, RENDER_TIMEOUT_S).
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Description string `json:"description"`
	OutputPath  string `json:"output_path"`
	OutputName  string `json:"output_name"`
}

type generateResponse struct {
	VideoPath string `json:"video_path"`
}

// Generate invokes POST {baseURL}/generate with the job description and
// the target output name, and returns the local filesystem path of the
// directory holding the HLS bundle (master playlist, segments, poster).
// A non-2xx response or a timed-out call is a
// step-2 failure the caller treats per the retry policy.
func (c *Client) Generate(ctx context.Context, description, outputName, outputPath string) (string, error) {
	reqBody, err := json.Marshal(generateRequest{
		Description: description,
		OutputPath:  outputPath,
		OutputName:  outputName,
	})
	if err != nil {
		return "", fmt.Errorf("renderer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("renderer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("renderer: generate %s: %w", outputName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("renderer: generate %s: non-2xx status %d", outputName, resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("renderer: decode response for %s: %w", outputName, err)
	}
	if parsed.VideoPath == "" {
		return "", fmt.Errorf("renderer: generate %s: no video_path in response", outputName)
	}

	return parsed.VideoPath, nil
}
