package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir(), "http://files.test/")
	require.NoError(t, err)

	name := "forms/job/job-1/q3/a.jpg"
	require.NoError(t, s.Put(ctx, name, "image/jpeg", strings.NewReader("bytes"), 5))

	rc, err := s.Get(ctx, name)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(body))

	url, err := s.URL(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "http://files.test/files/forms/job/job-1/q3/a.jpg", url)

	require.NoError(t, s.Delete(ctx, name))
	require.NoError(t, s.Delete(ctx, name))
	_, err = s.Get(ctx, name)
	assert.Error(t, err)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(filepath.Join(t.TempDir(), "objects"), "http://files.test")
	require.NoError(t, err)

	for _, name := range []string{"../escape.jpg", "forms/../../escape.jpg", "."} {
		err := s.Put(ctx, name, "image/jpeg", strings.NewReader("x"), 1)
		assert.Error(t, err, name)
	}
}

func TestPhotoPolicy(t *testing.T) {
	p := PhotoPolicy(1)
	assert.Equal(t, int64(1<<20), p.MaxBytes())

	assert.NoError(t, p.ValidateFile("meter.JPG", "image/jpeg", 1024))
	assert.NoError(t, p.ValidateFile("scan.heic", "image/heic", 1024))
	assert.ErrorIs(t, p.ValidateFile("meter.jpg", "image/jpeg", 2<<20), ErrFileTooLarge)
	assert.ErrorIs(t, p.ValidateFile("notes.txt", "text/plain; charset=utf-8", 10), ErrFileType)
	assert.ErrorIs(t, p.ValidateFile("meter.gif", "image/gif", 10), ErrFileType)
	assert.ErrorIs(t, p.ValidateFile("meter", "image/jpeg", 10), ErrFileType)

	var none *FilePolicy
	assert.NoError(t, none.ValidateFile("anything.bin", "application/octet-stream", 1<<30))
	assert.Zero(t, none.MaxBytes())
}

func TestHashingReader(t *testing.T) {
	h := NewHashingReader(strings.NewReader("hello"))
	_, err := io.Copy(io.Discard, h)
	require.NoError(t, err)
	assert.Equal(t, int64(5), h.Size())
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h.SHA256())

	sum, err := CalculateSHA256(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, h.SHA256(), sum)
}

func TestPhotoObjectName(t *testing.T) {
	name := PhotoObjectName("tc_job", "TC/42", "q 3", "Meter.JPEG")
	parts := strings.Split(name, "/")
	require.Len(t, parts, 5)
	assert.Equal(t, []string{"forms", "tc_job", "TC_42", "q_3"}, parts[:4])
	assert.True(t, strings.HasSuffix(parts[4], ".jpeg"))
	assert.NotEqual(t, name, PhotoObjectName("tc_job", "TC/42", "q 3", "Meter.JPEG"))
}

func TestValidateFileMetadata(t *testing.T) {
	assert.NoError(t, ValidateFileMetadata(FileMetadata{Name: "a.jpg", URL: "http://x/a.jpg"}))
	assert.Error(t, ValidateFileMetadata(FileMetadata{URL: "http://x/a.jpg"}))
	assert.Error(t, ValidateFileMetadata(FileMetadata{Name: "a.jpg"}))
	assert.Error(t, ValidateFileMetadata(FileMetadata{Name: "a.jpg", URL: "u", Size: -1}))
}
