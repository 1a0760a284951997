// Package backend is a typed client for the sync-scheduler backend API.
// It covers the job lifecycle endpoints, the log feeds, database listing
// and the auxiliary probes the portal exposes. All calls take a context
// and honor a per-request timeout, responses are decoded strictly and
// size-limited.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
)

// ErrUnexpectedShape indicates a 2xx response whose body did not match the
// documented shape. The call succeeded on the wire and callers may treat it
// as accepted, but no data could be extracted.
var ErrUnexpectedShape = errors.New("unexpected response shape")

const maxResponseSize = 1024 * 1024 // 1MB, backend responses are small

// Client talks to a single backend instance.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// New makes a Client for the given base URL, only http and https schemes
// are accepted. Timeout applies to each request, zero means 10 seconds.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme in backend URL: %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{},
	}, nil
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// Run triggers a sync in the given mode, db is optional and passed as a
// query parameter when set. The response body is ignored.
func (c *Client) Run(ctx context.Context, mode RunMode, db string) error {
	path := "/run/" + url.PathEscape(string(mode))
	if db != "" {
		path += "?db=" + url.QueryEscape(db)
	}
	return c.call(ctx, http.MethodGet, path, nil, nil)
}

// Logs returns the runner log feed from /logs.
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var resp struct {
		Logs []string `json:"logs"`
	}
	if err := c.call(ctx, http.MethodGet, "/logs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// GetLogs returns the activity log feed from /get_logs. The backend keeps
// the two feeds separate, so does the client.
func (c *Client) GetLogs(ctx context.Context) ([]string, error) {
	var resp struct {
		Logs []string `json:"logs"`
	}
	if err := c.call(ctx, http.MethodGet, "/get_logs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// Databases lists database names available for jobs and manual runs.
func (c *Client) Databases(ctx context.Context) ([]string, error) {
	var resp struct {
		Databases []string `json:"databases"`
	}
	if err := c.call(ctx, http.MethodGet, "/get_databases", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Databases, nil
}

// Jobs returns all scheduled jobs.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.call(ctx, http.MethodGet, "/jobs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// CreateJob makes a new job and returns the backend's record of it with
// defaults filled in. A 2xx response without a job object returns
// ErrUnexpectedShape.
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (Job, error) {
	var resp struct {
		Job *Job `json:"job"`
	}
	if err := c.call(ctx, http.MethodPost, "/jobs/create", req, &resp); err != nil {
		return Job{}, err
	}
	if resp.Job == nil {
		return Job{}, ErrUnexpectedShape
	}
	return *resp.Job, nil
}

// StartJob asks the backend to start the job's schedule loop.
func (c *Client) StartJob(ctx context.Context, id string) error {
	return c.jobAction(ctx, id, "start")
}

// StopJob asks the backend to stop the job's schedule loop.
func (c *Client) StopJob(ctx context.Context, id string) error {
	return c.jobAction(ctx, id, "stop")
}

// DeleteJob removes the job permanently.
func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.jobAction(ctx, id, "delete")
}

// UpdateJob replaces the job's editable fields.
func (c *Client) UpdateJob(ctx context.Context, id string, req JobRequest) error {
	return c.call(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/update", req, nil)
}

func (c *Client) jobAction(ctx context.Context, id, action string) error {
	return c.call(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/"+action, nil, nil)
}

// CheckSQL probes the backend's SQL server connection.
func (c *Client) CheckSQL(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	if err := c.call(ctx, http.MethodGet, "/api/check_sql", nil, &res); err != nil {
		return CheckResult{}, err
	}
	return res, nil
}

// CheckTally probes the backend's Tally gateway connection.
func (c *Client) CheckTally(ctx context.Context) (CheckResult, error) {
	var res CheckResult
	if err := c.call(ctx, http.MethodGet, "/api/check_tally", nil, &res); err != nil {
		return CheckResult{}, err
	}
	return res, nil
}

// CreateDatabase makes a new target database and returns the backend's
// confirmation message.
func (c *Client) CreateDatabase(ctx context.Context, name string) (string, error) {
	req := map[string]string{"name": name}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/create_database", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// SaveMasters stores the master selection used by selected-mode runs.
func (c *Client) SaveMasters(ctx context.Context, masters []string) (string, error) {
	req := map[string][]string{"masters": masters}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/save_masters", req, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// DownloadNow triggers an immediate download outside the schedule.
func (c *Client) DownloadNow(ctx context.Context, note, db string) (DownloadReceipt, error) {
	req := map[string]string{"note": note, "db": db}
	var rec DownloadReceipt
	if err := c.call(ctx, http.MethodPost, "/download_now", req, &rec); err != nil {
		return DownloadReceipt{}, err
	}
	return rec, nil
}

// DownloadHistory returns past manual downloads, newest first as the
// backend reports them.
func (c *Client) DownloadHistory(ctx context.Context) ([]DownloadEntry, error) {
	var resp struct {
		History []DownloadEntry `json:"history"`
	}
	if err := c.call(ctx, http.MethodGet, "/get_download_history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// call issues a single request with the client timeout applied. A non-2xx
// status is an error, the backend's {"error": "..."} body is folded into
// the message when present. out may be nil for calls with ignored bodies.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request for %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("[WARN] failed to close response body: %v", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: %s", method, path, backendError(resp.StatusCode, data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return nil
}

// backendError extracts the backend's error message from a failed response,
// falling back to the bare status code.
func backendError(status int, body []byte) string {
	var eresp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &eresp); err == nil && eresp.Error != "" {
		return fmt.Sprintf("backend returned %d: %s", status, eresp.Error)
	}
	return fmt.Sprintf("backend returned %d", status)
}
