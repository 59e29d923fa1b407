// Package client is a Go client for the irishnsw HTTP server.
//
// It covers every endpoint: health, index statistics, probes, snapshots and
// background identification runs. Errors returned by the server are
// surfaced as *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanonone/irishnsw/internal/server"
	"github.com/sanonone/irishnsw/pkg/experiment"
)

// APIError is an error returned by the server (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Task is a background run on the server.
type Task struct {
	server.TaskResponse

	client *Client
}

// Client talks to one server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL, e.g. "http://localhost:9100".
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// jsonRequest sends payload as JSON and decodes the response into out when
// out is not nil.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Health returns nil when the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Stats returns the index parameters, layer sizes and counters.
func (c *Client) Stats(ctx context.Context) (server.StatsResponse, error) {
	var out server.StatsResponse
	err := c.jsonRequest(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// Probe searches with a noisy copy of an enrolled template.
func (c *Client) Probe(ctx context.Context, req server.ProbeRequest) (server.ProbeResponse, error) {
	var out server.ProbeResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/probe", req, &out)
	return out, err
}

// Save asks the server to write a snapshot.
func (c *Client) Save(ctx context.Context) (server.SaveResponse, error) {
	var out server.SaveResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/system/save", nil, &out)
	return out, err
}

// StartThreshold starts a background identification run.
func (c *Client) StartThreshold(ctx context.Context, p experiment.ThresholdParams, seed int64) (*Task, error) {
	t := &Task{client: c}
	req := server.ThresholdTaskRequest{ThresholdParams: p, Seed: seed}
	if err := c.jsonRequest(ctx, http.MethodPost, "/experiments/threshold", req, &t.TaskResponse); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTask fetches the state of a background run.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	t := &Task{client: c}
	if err := c.jsonRequest(ctx, http.MethodGet, "/tasks/"+id, nil, &t.TaskResponse); err != nil {
		return nil, err
	}
	return t, nil
}

// Refresh updates the task from the server.
func (t *Task) Refresh(ctx context.Context) error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updated, err := t.client.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	t.TaskResponse = updated.TaskResponse
	return nil
}

// Wait polls the task every interval until it completes, fails or ctx is done.
func (t *Task) Wait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch t.Status {
		case server.TaskStatusCompleted:
			return nil
		case server.TaskStatusFailed:
			return fmt.Errorf("task %s failed with error: %s", t.ID, t.Error)
		case server.TaskStatusRunning, server.TaskStatusStarted:
		default:
			return fmt.Errorf("unknown task status: %s", t.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for task %s: %w", t.ID, ctx.Err())
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				return err
			}
		}
	}
}
