// Package client is a thin HTTP client for the task supervisor's control
// plane, used by the CLI and suitable for embedding.
//
// Grounded on the teacher's cmd/provisr/client.go APIClient (base URL +
// timeout, plain net/http, JSON marshal/unmarshal of request/response
// bodies, a dedicated error shape read off non-2xx responses).
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/procpanel/tasksupervisor/internal/model"
)

// Client talks to a running task supervisor daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://localhost:3001/api"),
// defaulting timeout to 10s.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3001/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s", e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// List returns every task.
func (c *Client) List() ([]model.Task, error) {
	var tasks []model.Task
	err := c.do(http.MethodGet, "/projects", nil, &tasks)
	return tasks, err
}

// Create registers a new task.
func (c *Client) Create(t model.Task) (model.Task, error) {
	var out model.Task
	err := c.do(http.MethodPost, "/projects", t, &out)
	return out, err
}

// Start starts the named task, returning its pid on success.
func (c *Client) Start(id string) (int, error) {
	var out struct {
		OK  bool `json:"ok"`
		PID int  `json:"pid"`
	}
	err := c.do(http.MethodPost, "/projects/start", map[string]string{"id": id}, &out)
	return out.PID, err
}

// Stop stops the named task.
func (c *Client) Stop(id string) error {
	return c.do(http.MethodPost, "/projects/stop", map[string]string{"id": id}, nil)
}

// Restart restarts the named task, returning its new pid on success.
func (c *Client) Restart(id string) (int, error) {
	var out struct {
		OK  bool `json:"ok"`
		PID int  `json:"pid"`
	}
	err := c.do(http.MethodPost, "/projects/restart", map[string]string{"id": id}, &out)
	return out.PID, err
}

// Status returns the task's running status.
func (c *Client) Status(id string) (model.Status, error) {
	var out model.Status
	err := c.do(http.MethodGet, "/projects/status/"+id, nil, &out)
	return out, err
}

// Logs returns the stdout/stderr snapshots for the task.
func (c *Client) Logs(id string) (stdout, stderr []string, err error) {
	var out struct {
		Stdout []string `json:"stdout"`
		Stderr []string `json:"stderr"`
	}
	err = c.do(http.MethodGet, "/projects/logs/"+id, nil, &out)
	return out.Stdout, out.Stderr, err
}
