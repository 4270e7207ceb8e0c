// Package veo talks to the upstream video-generation API. Generation is
// operation-based: Start returns an operation id, Poll reports whether the
// operation finished and with what.
package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config holds upstream API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ConfigFromEnv builds a Config from VEO_API_URL and VEO_API_KEY.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("VEO_API_URL")), "/"),
		APIKey:  strings.TrimSpace(os.Getenv("VEO_API_KEY")),
		Timeout: 60 * time.Second,
	}
}

// StartRequest describes one generation run.
type StartRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// Operation is the state of a generation run.
type Operation struct {
	ID           string `json:"id"`
	Done         bool   `json:"done"`
	VideoURL     string `json:"video_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Backend is the surface the worker needs; Client is the HTTP
// implementation.
type Backend interface {
	Start(ctx context.Context, req StartRequest) (string, error)
	Poll(ctx context.Context, operationID string) (*Operation, error)
}

// Client calls the veo HTTP API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Backend = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Start begins a generation run and returns its operation id.
func (c *Client) Start(ctx context.Context, req StartRequest) (string, error) {
	var op Operation
	if err := c.do(ctx, http.MethodPost, "/v1/operations", req, &op); err != nil {
		return "", fmt.Errorf("vidgraph: veo start: %w", err)
	}
	return op.ID, nil
}

// Poll reports the current state of an operation.
func (c *Client) Poll(ctx context.Context, operationID string) (*Operation, error) {
	var op Operation
	if err := c.do(ctx, http.MethodGet, "/v1/operations/"+operationID, nil, &op); err != nil {
		return nil, fmt.Errorf("vidgraph: veo poll: %w", err)
	}
	return &op, nil
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
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
