// Package client is the REST client for the resona server. The CLI uses it to
// upload audio, start notebooks, and watch their progress.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/resona/internal/notebook"
	"github.com/JakeFAU/resona/internal/operation"
	"github.com/JakeFAU/resona/internal/store"
	"github.com/JakeFAU/resona/internal/uploads"
)

// APIKeyHeader carries the optional server API key.
const APIKeyHeader = "X-API-Key"

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	StatusCode int                  `json:"-"`
	Message    string               `json:"error"`
	Hint       string               `json:"hint,omitempty"`
	Tip        string               `json:"tip,omitempty"`
	Errors     []notebook.FileError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, msg)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryCount retries idempotent reads on 429 and 5xx.
	RetryCount int
}

// Client talks to one resona server.
type Client struct {
	http *resty.Client
}

// New builds a Client. hc may be nil.
func New(cfg Config, hc *http.Client) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		rc.SetHeader(APIKeyHeader, cfg.APIKey)
	}
	return &Client{http: rc}
}

// File is one audio file to upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Files   []uploads.Upload `json:"files"`
}

// Upload sends audio files as one multipart request.
func (c *Client) Upload(ctx context.Context, files []File) (*UploadResponse, error) {
	req := c.http.R().SetContext(ctx)
	for _, f := range files {
		req.SetMultipartField("audioFiles", f.Name, f.ContentType, f.Body)
	}
	var out UploadResponse
	if err := do(req.SetResult(&out), http.MethodPost, "/api/upload"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles returns stored uploads.
func (c *Client) ListFiles(ctx context.Context) ([]uploads.FileInfo, error) {
	var out struct {
		Files []uploads.FileInfo `json:"files"`
	}
	if err := do(c.http.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/api/files"); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// CreateNotebook runs the creation synchronously and returns its result.
func (c *Client) CreateNotebook(ctx context.Context, in notebook.CreateRequest) (*notebook.CreateResult, error) {
	var out notebook.CreateResult
	req := c.http.R().SetContext(ctx).SetBody(in).SetResult(&out)
	if err := do(req, http.MethodPost, "/api/notebook/create"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Accepted is the 202 body of an asynchronous create.
type Accepted struct {
	ProgressID  string `json:"progressId"`
	OperationID string `json:"operationId"`
	StatusURL   string `json:"statusUrl"`
}

// StartNotebook asks the server to run the creation in the background and
// returns the progress ID to poll.
func (c *Client) StartNotebook(ctx context.Context, in notebook.CreateRequest) (*Accepted, error) {
	var out Accepted
	req := c.http.R().SetContext(ctx).
		SetQueryParam("async", "true").
		SetBody(in).
		SetResult(&out)
	if err := do(req, http.MethodPost, "/api/notebook/create"); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches one progress record. A 404 matches operation.ErrNotFound.
func (c *Client) Status(ctx context.Context, id string) (operation.Status, error) {
	var out operation.Status
	err := do(c.http.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/api/notebook/progress/"+url.PathEscape(id))
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return operation.Status{}, fmt.Errorf("%w: %s", operation.ErrNotFound, id)
	}
	return out, err
}

// ListNotebooks returns saved notebooks, newest first.
func (c *Client) ListNotebooks(ctx context.Context, limit, offset int) ([]store.Notebook, error) {
	var out struct {
		Notebooks []store.Notebook `json:"notebooks"`
	}
	req := c.http.R().SetContext(ctx).SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		req.SetQueryParam("offset", strconv.Itoa(offset))
	}
	if err := do(req, http.MethodGet, "/api/notebooks"); err != nil {
		return nil, err
	}
	return out.Notebooks, nil
}

// GetNotebook returns one saved notebook.
func (c *Client) GetNotebook(ctx context.Context, id string) (*store.Notebook, error) {
	var out store.Notebook
	if err := do(c.http.R().SetContext(ctx).SetResult(&out), http.MethodGet, "/api/notebooks/"+url.PathEscape(id)); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddNote appends a note card to a notebook.
func (c *Client) AddNote(ctx context.Context, notebookID string, kind store.NoteKind, text string) (*store.Note, error) {
	var out store.Note
	req := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&out)
	path := "/api/notebooks/" + url.PathEscape(notebookID) + "/notes/" + url.PathEscape(string(kind))
	if err := do(req, http.MethodPost, path); err != nil {
		return nil, err
	}
	return &out, nil
}

func do(req *resty.Request, method, path string) error {
	var apiErr APIError
	resp, err := req.SetError(&apiErr).Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return &apiErr
	}
	return nil
}
