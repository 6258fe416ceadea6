// Package client implements the batch submission protocol: submit many files
// concurrently, poll each job by its identifier, and stop waiting on an
// overall wall-clock budget or a user abort. Abandonment is local only; the
// server is never told to stop a running conversion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/doconv/convertd/internal/convert"
	"github.com/doconv/convertd/internal/job"
)

const (
	DefaultPollInterval = time.Second
	DefaultBatchBudget  = 5 * time.Minute
)

type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	BatchBudget  time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:      baseURL,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: DefaultPollInterval,
		BatchBudget:  DefaultBatchBudget,
	}
}

type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StatusResponse struct {
	JobID    string          `json:"job_id"`
	Status   job.Status      `json:"status"`
	Progress int             `json:"progress"`
	Filename string          `json:"filename"`
	Result   *convert.Result `json:"result,omitempty"`
}

// Submit starts an asynchronous conversion and returns the job identifier.
func (c *Client) Submit(ctx context.Context, filename string, data []byte, format convert.Format, opts convert.Options) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	mw.WriteField("output_format", string(format))
	mw.WriteField("include_images", strconv.FormatBool(opts.IncludeImages))
	mw.WriteField("include_tables", strconv.FormatBool(opts.IncludeTables))
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/convert-async", &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit %s: %w", filename, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit %s: server returned %d: %s", filename, resp.StatusCode, bytes.TrimSpace(body))
	}

	var sr SubmitResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("submit %s: decode response: %w", filename, err)
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("submit %s: no job_id in response", filename)
	}
	return sr.JobID, nil
}

// Status fetches the current state of one job.
func (c *Client) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/convert-status/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, job.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s: server returned %d", jobID, resp.StatusCode)
	}

	var sr StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("status %s: decode response: %w", jobID, err)
	}
	return &sr, nil
}
