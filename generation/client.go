// Package generation is the HTTP client for the vidgraph job API, used by
// the canvas engine as its GenerationService.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meikuraledutech/vidgraph"
)

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from GENERATION_API_URL and
// GENERATION_API_TIMEOUT_SECONDS.
func ConfigFromEnv() Config {
	timeout := 30
	if v := strings.TrimSpace(os.Getenv("GENERATION_API_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = n
		}
	}
	return Config{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("GENERATION_API_URL")), "/"),
		Timeout: time.Duration(timeout) * time.Second,
	}
}

// Client implements vidgraph.GenerationService over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ vidgraph.GenerationService = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type generateResponse struct {
	JobID string `json:"job_id"`
}

// Generate requests a new video generation job.
func (c *Client) Generate(ctx context.Context, req vidgraph.GenerationRequest) (string, error) {
	var resp generateResponse
	if err := c.do(ctx, http.MethodPost, "/ai/generate-video", req, &resp); err != nil {
		return "", fmt.Errorf("vidgraph: generate: %w", err)
	}
	return resp.JobID, nil
}

// GetStatus returns the current state of a job. A 404 maps to
// vidgraph.ErrJobNotFound.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*vidgraph.Job, error) {
	var job vidgraph.Job
	if err := c.do(ctx, http.MethodGet, "/ai/jobs/"+jobID, nil, &job); err != nil {
		if isNotFound(err) {
			return nil, vidgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("vidgraph: job status: %w", err)
	}
	return &job, nil
}

// GetLatestJobForNode returns the node's most recent job, or nil, nil when
// the node has none.
func (c *Client) GetLatestJobForNode(ctx context.Context, nodeID string) (*vidgraph.Job, error) {
	var job vidgraph.Job
	if err := c.do(ctx, http.MethodGet, "/ai/nodes/"+nodeID+"/jobs/latest", nil, &job); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vidgraph: latest job: %w", err)
	}
	return &job, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
