// Package remote is the HTTP client for the card processing service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"character-card-wizard/internal/models"
)

// RequestIDHeader carries a per-request uuid for correlating client and server logs.
const RequestIDHeader = "X-Request-ID"

// ErrNoProcessID is returned when the service accepts a submission but does not name the job.
var ErrNoProcessID = errors.New("response missing process_id")

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client talks to the submit, status, generate_card and update_task_result endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client. baseURL is the endpoint prefix, e.g. http://127.0.0.1:9986/api/file.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type submitResponse struct {
	ProcessID string `json:"process_id"`
}

type generateRequest struct {
	ProcessID string `json:"process_id"`
}

type updateRequest struct {
	ProcessID  string `json:"process_id"`
	StepID     string `json:"step_id"`
	NewSummary string `json:"new_summary"`
}

// Submit uploads the character payload as the `data` part and each file as a
// `files` part, in order, and returns the new job id.
func (c *Client) Submit(ctx context.Context, sub models.Submission) (string, error) {
	payload, err := json.Marshal(sub.Data)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("data", string(payload)); err != nil {
		return "", fmt.Errorf("write data part: %w", err)
	}
	for _, path := range sub.Files {
		if err := addFilePart(mw, path); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "submit", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", err
	}
	if out.ProcessID == "" {
		return "", ErrNoProcessID
	}
	return out.ProcessID, nil
}

func addFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy upload %s: %w", path, err)
	}
	return nil
}

// Status fetches the cumulative snapshot of a job.
func (c *Client) Status(ctx context.Context, processID string) (models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	err := c.do(ctx, http.MethodGet, "status/"+url.PathEscape(processID), "", nil, &snap)
	return snap, err
}

// GenerateCard asks the service to start the final generation task.
func (c *Client) GenerateCard(ctx context.Context, processID string) error {
	return c.postJSON(ctx, "generate_card", generateRequest{ProcessID: processID})
}

// UpdateTaskResult replaces the summary of one sub-task with a human correction.
func (c *Client) UpdateTaskResult(ctx context.Context, processID, stepID, summary string) error {
	return c.postJSON(ctx, "update_task_result", updateRequest{ProcessID: processID, StepID: stepID, NewSummary: summary})
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(b), nil)
}

// do issues one request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
