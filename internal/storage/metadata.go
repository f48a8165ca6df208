package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileMetadata describes a stored object
type FileMetadata struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	MIME   string `json:"mime"`
	SHA256 string `json:"sha256,omitempty"`
}

// ValidateFileMetadata validates that file metadata has required fields
func ValidateFileMetadata(meta FileMetadata) error {
	if meta.Name == "" {
		return fmt.Errorf("file name is required")
	}
	if meta.URL == "" {
		return fmt.Errorf("file URL is required")
	}
	if meta.Size < 0 {
		return fmt.Errorf("file size must be non-negative")
	}
	return nil
}

// HashingReader counts and hashes bytes as they are read.
type HashingReader struct {
	r    io.Reader
	hash hash.Hash
	n    int64
}

func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, hash: sha256.New()}
}

func (h *HashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.hash.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

// Size is the number of bytes read so far.
func (h *HashingReader) Size() int64 { return h.n }

// SHA256 is the hex digest of the bytes read so far.
func (h *HashingReader) SHA256() string { return hex.EncodeToString(h.hash.Sum(nil)) }

// CalculateSHA256 calculates SHA256 hash of file content
func CalculateSHA256(reader io.Reader) (string, error) {
	h := NewHashingReader(reader)
	if _, err := io.Copy(io.Discard, h); err != nil {
		return "", err
	}
	return h.SHA256(), nil
}

// PhotoObjectName builds a unique object name for a form photo.
func PhotoObjectName(jobKind, jobID, questionID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return path.Join("forms", safeSegment(jobKind), safeSegment(jobID), safeSegment(questionID), uuid.NewString()+ext)
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}
