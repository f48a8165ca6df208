// Package client talks to the backend completion-form endpoints and to the
// live-form endpoints of TC jobs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"jobform/internal/model"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// ErrNotFound matches an APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is an HTTP client for the backend. Templates are immutable, so
// fetched templates are cached for the life of the client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
	templates  *expirable.LRU[string, model.Template]
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a client for baseURL, e.g. "https://api.example.com/v1".
func New(baseURL string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		templates:  expirable.NewLRU[string, model.Template](32, nil, time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func jobPath(kind model.JobKind, jobID string) string {
	segment := "jobs"
	if kind == model.JobKindTC {
		segment = "tc-jobs"
	}
	return fmt.Sprintf("/%s/%s", segment, url.PathEscape(jobID))
}

// GetTemplate fetches a template by id.
func (c *Client) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	if t, ok := c.templates.Get(id); ok {
		return &t, nil
	}
	var t model.Template
	if err := c.doJSON(ctx, http.MethodGet, "/templates/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	c.templates.Add(id, t)
	return &t, nil
}

// GetJobForm returns the completion form of a job, or nil if there is none.
func (c *Client) GetJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error) {
	var env model.FormEnvelope
	if err := c.doJSON(ctx, http.MethodGet, jobPath(kind, jobID)+"/completion-form", nil, &env); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get completion form for %s %s: %w", kind, jobID, err)
	}
	return env.Form, nil
}

// SaveJobForm upserts the completion form of a job.
func (c *Client) SaveJobForm(ctx context.Context, kind model.JobKind, jobID string, req model.SaveFormRequest) (*model.FormRecord, error) {
	var env model.FormEnvelope
	if err := c.doJSON(ctx, http.MethodPost, jobPath(kind, jobID)+"/completion-form", req, &env); err != nil {
		return nil, fmt.Errorf("save completion form for %s %s: %w", kind, jobID, err)
	}
	if env.Form == nil {
		return nil, fmt.Errorf("save completion form for %s %s: empty response", kind, jobID)
	}
	return env.Form, nil
}

// SubmitJobForm moves the completion form of a job from draft to submitted.
func (c *Client) SubmitJobForm(ctx context.Context, kind model.JobKind, jobID string) (*model.FormRecord, error) {
	var env model.FormEnvelope
	if err := c.doJSON(ctx, http.MethodPut, jobPath(kind, jobID)+"/completion-form/submit", nil, &env); err != nil {
		return nil, fmt.Errorf("submit completion form for %s %s: %w", kind, jobID, err)
	}
	return env.Form, nil
}

// PhotoUpload describes one photo file sent to the backend.
type PhotoUpload struct {
	QuestionID  string
	Caption     string
	PhotoType   string
	FileName    string
	ContentType string
	Body        io.Reader
}

// UploadPhoto sends a photo for a question of a job's completion form.
func (c *Client) UploadPhoto(ctx context.Context, kind model.JobKind, jobID string, p PhotoUpload) (*model.Photo, error) {
	req, err := c.newPhotoRequest(ctx, jobPath(kind, jobID)+"/completion-form/photos", p)
	if err != nil {
		return nil, err
	}
	var env model.PhotoEnvelope
	if err := c.do(req, &env); err != nil {
		return nil, fmt.Errorf("upload photo for %s %s: %w", kind, jobID, err)
	}
	return &env.Photo, nil
}

// UploadLivePhoto sends a photo for a question of a TC job's live form. The
// file is stored by the external system, so no local form record is needed.
func (c *Client) UploadLivePhoto(ctx context.Context, tcJobID string, p PhotoUpload) (*model.LivePhotoResponse, error) {
	req, err := c.newPhotoRequest(ctx, jobPath(model.JobKindTC, tcJobID)+"/live-form/photos", p)
	if err != nil {
		return nil, err
	}
	var resp model.LivePhotoResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("upload live photo for tc job %s: %w", tcJobID, err)
	}
	return &resp, nil
}

func (c *Client) newPhotoRequest(ctx context.Context, path string, p PhotoUpload) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"question_id": p.QuestionID,
		"caption":     p.Caption,
		"photo_type":  p.PhotoType,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	part, err := mw.CreatePart(fileHeader(p.FileName, p.ContentType))
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, p.Body); err != nil {
		return nil, fmt.Errorf("failed to copy photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// LiveFormDefinition fetches the live form and previously synced answers of
// a TC job in one round trip.
func (c *Client) LiveFormDefinition(ctx context.Context, tcJobID string) (*model.LiveFormDefinition, error) {
	var def model.LiveFormDefinition
	if err := c.doJSON(ctx, http.MethodGet, jobPath(model.JobKindTC, tcJobID)+"/live-form", nil, &def); err != nil {
		return nil, fmt.Errorf("get live form for tc job %s: %w", tcJobID, err)
	}
	return &def, nil
}

// SyncLiveAnswers pushes the full answer map of a TC job's live form.
func (c *Client) SyncLiveAnswers(ctx context.Context, tcJobID string, body model.SyncRequest) (*model.SyncResponse, error) {
	var resp model.SyncResponse
	if err := c.doJSON(ctx, http.MethodPost, jobPath(model.JobKindTC, tcJobID)+"/live-form/sync", body, &resp); err != nil {
		return nil, fmt.Errorf("sync live answers for tc job %s: %w", tcJobID, err)
	}
	return &resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Code = body.Code
			if apiErr.Code == "" {
				apiErr.Code = body.Error
			}
			apiErr.Message = body.Message
		}
		c.log.Debug("Backend error response",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func fileHeader(name, contentType string) textproto.MIMEHeader {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, name)},
		"Content-Type":        {contentType},
	}
}
