package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teslabox/internal/archive"
	"teslabox/internal/stream"
)

// Client calls a running daemon's API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient targets bind, a host:port or URL.
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{baseURL: base, token: token, http: &http.Client{Timeout: 10 * time.Second}}
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Status  int
	Message string
	Code    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Queue fetches the pending jobs of both pipelines.
func (c *Client) Queue(ctx context.Context) (QueueResponse, error) {
	var out QueueResponse
	err := c.do(ctx, http.MethodGet, "/queue", nil, &out)
	return out, err
}

// PushArchive queues an archive request and returns its id.
func (c *Client) PushArchive(ctx context.Context, req archive.Request) (string, error) {
	var out AcceptedResponse
	err := c.do(ctx, http.MethodPost, "/archives", req, &out)
	return out.ID, err
}

// PushStream queues a stream request and returns its id.
func (c *Client) PushStream(ctx context.Context, req stream.Request) (string, error) {
	var out AcceptedResponse
	err := c.do(ctx, http.MethodPost, "/streams", req, &out)
	return out.ID, err
}

// Cancel drops a queued or running job.
func (c *Client) Cancel(ctx context.Context, pipelineName, id string) error {
	return c.do(ctx, http.MethodDelete, "/queue/"+pipelineName+"/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Status: resp.StatusCode, Message: apiErr.Error, Code: apiErr.Code}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
