package engine

import (
	"context"
	"fmt"

	"jobform/internal/photo"
)

// CapturePhoto takes or picks a photo for a file question, uploads it and
// binds the returned URL as the question's answer.
func (s *Session) CapturePhoto(ctx context.Context, questionID string, source photo.Source) (string, error) {
	multiple, err := s.photoTarget(questionID)
	if err != nil {
		return "", err
	}
	return s.cfg.Photos.Acquire(ctx, questionID, source, s.photoBinder(questionID, multiple))
}

// UploadPhotoFile uploads an existing local image for a file question.
func (s *Session) UploadPhotoFile(ctx context.Context, questionID, path string) (string, error) {
	multiple, err := s.photoTarget(questionID)
	if err != nil {
		return "", err
	}
	return s.cfg.Photos.UploadFile(ctx, questionID, path, s.photoBinder(questionID, multiple))
}

// PhotoURL returns the bound photo URL of a file question. For multi-photo
// questions it is the most recent one.
func (s *Session) PhotoURL(questionID string) string {
	urls := s.PhotoURLs(questionID)
	if len(urls) == 0 {
		return ""
	}
	return urls[len(urls)-1]
}

// PhotoURLs returns every photo URL bound to a file question.
func (s *Session) PhotoURLs(questionID string) []string {
	v, ok := s.store.Value(questionID)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if u, ok := item.(string); ok && u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return nil
}

// RemovePhoto unbinds a photo from a file question. An empty url removes
// every photo of the question.
func (s *Session) RemovePhoto(questionID, url string) error {
	schema, _, err := s.current()
	if err != nil {
		return err
	}
	if s.Submitted() {
		return ErrSubmitted
	}
	isPhoto, multiple := schema.IsPhoto(questionID)
	if !isPhoto {
		return fmt.Errorf("%w: %s", ErrNotPhotoQuestion, questionID)
	}
	s.store.RemovePhoto(questionID, url, multiple)
	s.invalidateSync()
	return nil
}

// Uploading reports whether a photo upload for the question is in flight.
func (s *Session) Uploading(questionID string) bool {
	return s.cfg.Photos != nil && s.cfg.Photos.Uploading(questionID)
}

func (s *Session) photoTarget(questionID string) (bool, error) {
	schema, _, err := s.current()
	if err != nil {
		return false, err
	}
	if s.cfg.Photos == nil {
		return false, fmt.Errorf("photo pipeline not configured")
	}
	if s.Submitted() {
		return false, ErrSubmitted
	}
	isPhoto, multiple := schema.IsPhoto(questionID)
	if !isPhoto {
		return false, fmt.Errorf("%w: %s", ErrNotPhotoQuestion, questionID)
	}
	if s.mode == ModeDraft && s.Record() == nil {
		return false, ErrNoFormRecord
	}
	return multiple, nil
}

func (s *Session) photoBinder(questionID string, multiple bool) func(string) {
	return func(url string) {
		s.store.BindPhoto(questionID, url, multiple)
		s.invalidateSync()
	}
}
