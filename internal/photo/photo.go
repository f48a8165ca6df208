// Package photo acquires, normalizes and uploads photos that answer file
// questions.
package photo

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"jobform/internal/client"
	"jobform/internal/model"

	"go.uber.org/zap"
)

var (
	// ErrPermissionDenied is returned when the user denies access to the
	// camera or photo library.
	ErrPermissionDenied = errors.New("photo access permission denied")
	// ErrCaptureCancelled is returned when the user backs out of capture.
	ErrCaptureCancelled = errors.New("photo capture cancelled")
	// ErrUploadInProgress is returned when a photo for the same question is
	// still being captured or uploaded.
	ErrUploadInProgress = errors.New("photo upload already in progress for question")
	// ErrUploadRejected is returned when the live form refuses a photo.
	ErrUploadRejected = errors.New("photo upload rejected")
	// ErrNoCapturer is returned by Acquire on a pipeline built without a
	// capture device.
	ErrNoCapturer = errors.New("photo capture not available")
)

// Source is where a photo is acquired from.
type Source string

const (
	SourceCamera  Source = "camera"
	SourceLibrary Source = "library"
)

// Permissions asks the platform for access to a source.
type Permissions interface {
	Request(ctx context.Context, source Source) (bool, error)
}

// Device acquires image bytes and returns the path of a local file.
type Device interface {
	Acquire(ctx context.Context, source Source) (string, error)
}

// Capturer checks permission and then acquires a photo.
type Capturer struct {
	perms  Permissions
	device Device
}

func NewCapturer(perms Permissions, device Device) *Capturer {
	return &Capturer{perms: perms, device: device}
}

// Capture returns the local path of a newly acquired photo.
func (c *Capturer) Capture(ctx context.Context, source Source) (string, error) {
	granted, err := c.perms.Request(ctx, source)
	if err != nil {
		return "", fmt.Errorf("failed to request %s permission: %w", source, err)
	}
	if !granted {
		return "", fmt.Errorf("%s: %w", source, ErrPermissionDenied)
	}
	return c.device.Acquire(ctx, source)
}

// Uploader sends a local photo to remote storage and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, questionID, path string) (string, error)
}

// PhotoClient is the subset of the backend client used for uploads.
type PhotoClient interface {
	UploadPhoto(ctx context.Context, kind model.JobKind, jobID string, p client.PhotoUpload) (*model.Photo, error)
}

// BackendUploader uploads to the completion-form photo endpoint of a job.
// The job kind selects the internal or the TC-scoped endpoint.
type BackendUploader struct {
	client    PhotoClient
	kind      model.JobKind
	jobID     string
	photoType string
}

func NewBackendUploader(c PhotoClient, kind model.JobKind, jobID string) *BackendUploader {
	return &BackendUploader{client: c, kind: kind, jobID: jobID, photoType: "completion_form"}
}

func (u *BackendUploader) Upload(ctx context.Context, questionID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	p, err := u.client.UploadPhoto(ctx, u.kind, u.jobID, client.PhotoUpload{
		QuestionID:  questionID,
		PhotoType:   u.photoType,
		FileName:    filepath.Base(path),
		ContentType: contentTypeOf(path),
		Body:        f,
	})
	if err != nil {
		return "", err
	}
	if p.PhotoURL == "" {
		return "", fmt.Errorf("upload photo for question %s: empty photo url", questionID)
	}
	return p.PhotoURL, nil
}

// LivePhotoClient is the subset of the backend client used for live form
// uploads.
type LivePhotoClient interface {
	UploadLivePhoto(ctx context.Context, tcJobID string, p client.PhotoUpload) (*model.LivePhotoResponse, error)
}

// LiveUploader uploads to the external system's live form of a TC job. Live
// sessions have no local form record, so the backend photo endpoint cannot
// take their photos.
type LiveUploader struct {
	client  LivePhotoClient
	tcJobID string
}

func NewLiveUploader(c LivePhotoClient, tcJobID string) *LiveUploader {
	return &LiveUploader{client: c, tcJobID: tcJobID}
}

func (u *LiveUploader) Upload(ctx context.Context, questionID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	resp, err := u.client.UploadLivePhoto(ctx, u.tcJobID, client.PhotoUpload{
		QuestionID:  questionID,
		PhotoType:   "completion_form",
		FileName:    filepath.Base(path),
		ContentType: contentTypeOf(path),
		Body:        f,
	})
	if err != nil {
		return "", err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("upload live photo for question %s: %w: %s", questionID, ErrUploadRejected, msg)
	}
	if resp.PhotoURL == "" {
		return "", fmt.Errorf("upload live photo for question %s: empty photo url", questionID)
	}
	return resp.PhotoURL, nil
}

func contentTypeOf(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// Pipeline runs capture, normalization and upload for one session and
// tracks which questions have an upload in flight.
type Pipeline struct {
	capturer   *Capturer
	normalizer *Normalizer
	uploader   Uploader
	log        *zap.Logger

	mu        sync.Mutex
	uploading map[string]bool
}

func NewPipeline(capturer *Capturer, normalizer *Normalizer, uploader Uploader, log *zap.Logger) *Pipeline {
	return &Pipeline{
		capturer:   capturer,
		normalizer: normalizer,
		uploader:   uploader,
		log:        log,
		uploading:  make(map[string]bool),
	}
}

// Uploading reports whether a photo for the question is in flight.
func (p *Pipeline) Uploading(questionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploading[questionID]
}

// Acquire captures a photo from source, normalizes its orientation and
// uploads it. bind receives the remote URL only after the upload succeeds;
// the local path is never handed out as an answer.
func (p *Pipeline) Acquire(ctx context.Context, questionID string, source Source, bind func(url string)) (string, error) {
	if p.capturer == nil {
		return "", ErrNoCapturer
	}
	if !p.begin(questionID) {
		return "", ErrUploadInProgress
	}
	defer p.end(questionID)

	local, err := p.capturer.Capture(ctx, source)
	if err != nil {
		return "", err
	}
	return p.upload(ctx, questionID, local, bind)
}

// UploadFile uploads an already acquired local photo for a question.
func (p *Pipeline) UploadFile(ctx context.Context, questionID, local string, bind func(url string)) (string, error) {
	if !p.begin(questionID) {
		return "", ErrUploadInProgress
	}
	defer p.end(questionID)
	return p.upload(ctx, questionID, local, bind)
}

func (p *Pipeline) upload(ctx context.Context, questionID, local string, bind func(url string)) (string, error) {
	normalized := p.normalizer.Normalize(local)
	if normalized != local {
		defer os.Remove(normalized)
	}

	url, err := p.uploader.Upload(ctx, questionID, normalized)
	if err != nil {
		p.log.Warn("Photo upload failed", zap.String("question_id", questionID), zap.Error(err))
		return "", err
	}
	if bind != nil {
		bind(url)
	}
	p.log.Info("Photo uploaded", zap.String("question_id", questionID), zap.String("url", url))
	return url, nil
}

func (p *Pipeline) begin(questionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploading[questionID] {
		return false
	}
	p.uploading[questionID] = true
	return true
}

func (p *Pipeline) end(questionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.uploading, questionID)
}
