package photo

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"jobform/internal/client"
	"jobform/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// jpegWithOrientation encodes img as JPEG with an APP1 EXIF segment that
// carries only the orientation tag.
func jpegWithOrientation(t *testing.T, img image.Image, orientation uint16) []byte {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, jpeg.Encode(&body, img, &jpeg.Options{Quality: 100}))

	var tiff bytes.Buffer
	tiff.WriteString("II*\x00")
	binary.Write(&tiff, binary.LittleEndian, uint32(8))
	binary.Write(&tiff, binary.LittleEndian, uint16(1))
	binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	binary.Write(&tiff, binary.LittleEndian, uint16(3))
	binary.Write(&tiff, binary.LittleEndian, uint32(1))
	binary.Write(&tiff, binary.LittleEndian, orientation)
	binary.Write(&tiff, binary.LittleEndian, uint16(0))
	binary.Write(&tiff, binary.LittleEndian, uint32(0))

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(body.Bytes()[2:])
	return out.Bytes()
}

// halves is a 16x8 image, red on the left half and blue on the right.
func halves() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 8 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xB000 && g < 0x5000 && b < 0x5000
}

func isBlue(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return b > 0xB000 && g < 0x5000 && r < 0x5000
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestNormalize_RotatesClockwise(t *testing.T) {
	src := writeFile(t, "photo.jpg", jpegWithOrientation(t, halves(), 6))
	n := NewNormalizer(t.TempDir(), zap.NewNop())

	out := n.Normalize(src)
	require.NotEqual(t, src, out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)

	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
	assert.True(t, isRed(img.At(4, 3)), "left half ends up on top")
	assert.True(t, isBlue(img.At(4, 12)), "right half ends up at the bottom")
}

func TestNormalize_UprightPhotoIsUnchanged(t *testing.T) {
	src := writeFile(t, "photo.jpg", jpegWithOrientation(t, halves(), 1))
	n := NewNormalizer(t.TempDir(), zap.NewNop())
	assert.Equal(t, src, n.Normalize(src))
}

func TestNormalize_FallsBackToOriginal(t *testing.T) {
	n := NewNormalizer(t.TempDir(), zap.NewNop())
	missing := filepath.Join(t.TempDir(), "missing.jpg")
	assert.Equal(t, missing, n.Normalize(missing))

	broken := writeFile(t, "broken.jpg", []byte("not an image"))
	assert.Equal(t, broken, n.Normalize(broken))
}

func TestNormalize_OutputIsNamedAsJPEG(t *testing.T) {
	src := writeFile(t, "photo.png", jpegWithOrientation(t, halves(), 6))
	n := NewNormalizer(t.TempDir(), zap.NewNop())

	out := n.Normalize(src)
	require.NotEqual(t, src, out)
	assert.Equal(t, ".jpg", filepath.Ext(out))
	assert.Equal(t, "image/jpeg", contentTypeOf(out))
}

func TestApplyOrientation_Flips(t *testing.T) {
	img := applyOrientation(halves(), 2)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.True(t, isBlue(img.At(1, 1)))

	img = applyOrientation(halves(), 8)
	assert.Equal(t, 16, img.Bounds().Dy())
	assert.True(t, isBlue(img.At(4, 3)))
	assert.True(t, isRed(img.At(4, 12)))
}

type fakePerms struct{ granted bool }

func (p fakePerms) Request(ctx context.Context, source Source) (bool, error) { return p.granted, nil }

type fakeDevice struct{ path string }

func (d fakeDevice) Acquire(ctx context.Context, source Source) (string, error) { return d.path, nil }

type blockingUploader struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	started chan string
	err     error
}

func (u *blockingUploader) Upload(ctx context.Context, questionID, path string) (string, error) {
	u.mu.Lock()
	u.calls = append(u.calls, questionID)
	u.mu.Unlock()
	if u.started != nil {
		u.started <- questionID
	}
	if u.release != nil {
		<-u.release
	}
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/" + questionID + ".jpg", nil
}

func newPipeline(t *testing.T, granted bool, up Uploader) *Pipeline {
	local := writeFile(t, "shot.jpg", []byte("raw bytes"))
	capt := NewCapturer(fakePerms{granted: granted}, fakeDevice{path: local})
	return NewPipeline(capt, NewNormalizer(t.TempDir(), zap.NewNop()), up, zap.NewNop())
}

func TestPipeline_BindsRemoteURLAfterUpload(t *testing.T) {
	up := &blockingUploader{}
	p := newPipeline(t, true, up)

	var bound string
	url, err := p.Acquire(context.Background(), "q1", SourceCamera, func(u string) { bound = u })
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/q1.jpg", url)
	assert.Equal(t, url, bound)
	assert.False(t, p.Uploading("q1"))
}

func TestPipeline_PermissionDenied(t *testing.T) {
	up := &blockingUploader{}
	p := newPipeline(t, false, up)

	called := false
	_, err := p.Acquire(context.Background(), "q1", SourceLibrary, func(string) { called = true })
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, called)
	assert.Empty(t, up.calls)
	assert.False(t, p.Uploading("q1"))
}

func TestPipeline_UploadFailureDoesNotBind(t *testing.T) {
	up := &blockingUploader{err: errors.New("network down")}
	p := newPipeline(t, true, up)

	called := false
	_, err := p.Acquire(context.Background(), "q1", SourceCamera, func(string) { called = true })
	assert.Error(t, err)
	assert.False(t, called)
}

func TestPipeline_OneUploadPerQuestion(t *testing.T) {
	up := &blockingUploader{release: make(chan struct{}), started: make(chan string, 2)}
	p := newPipeline(t, true, up)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = p.Acquire(ctx, "q1", SourceCamera, nil)
	}()
	<-up.started
	assert.True(t, p.Uploading("q1"))

	_, err := p.Acquire(ctx, "q1", SourceCamera, nil)
	assert.ErrorIs(t, err, ErrUploadInProgress)

	go func() {
		defer wg.Done()
		_, _ = p.Acquire(ctx, "q2", SourceCamera, nil)
	}()
	<-up.started
	assert.True(t, p.Uploading("q2"))

	close(up.release)
	wg.Wait()
	assert.False(t, p.Uploading("q1"))
	assert.False(t, p.Uploading("q2"))
	assert.ElementsMatch(t, []string{"q1", "q2"}, up.calls)
}

func TestPipeline_AcquireWithoutCapturer(t *testing.T) {
	up := &blockingUploader{}
	p := NewPipeline(nil, NewNormalizer(t.TempDir(), zap.NewNop()), up, zap.NewNop())

	_, err := p.Acquire(context.Background(), "q1", SourceCamera, nil)
	assert.ErrorIs(t, err, ErrNoCapturer)
	assert.False(t, p.Uploading("q1"))
	assert.Empty(t, up.calls)
}

type fakeLiveClient struct {
	resp *model.LivePhotoResponse
	got  client.PhotoUpload
	job  string
}

func (c *fakeLiveClient) UploadLivePhoto(_ context.Context, tcJobID string, p client.PhotoUpload) (*model.LivePhotoResponse, error) {
	c.job = tcJobID
	c.got = p
	return c.resp, nil
}

func TestLiveUploader(t *testing.T) {
	local := writeFile(t, "meter.jpg", []byte("raw bytes"))

	ok := &fakeLiveClient{resp: &model.LivePhotoResponse{Success: true, PhotoURL: "https://tc.test/q3.jpg"}}
	url, err := NewLiveUploader(ok, "tc-9").Upload(context.Background(), "q3", local)
	require.NoError(t, err)
	assert.Equal(t, "https://tc.test/q3.jpg", url)
	assert.Equal(t, "tc-9", ok.job)
	assert.Equal(t, "q3", ok.got.QuestionID)
	assert.Equal(t, "meter.jpg", ok.got.FileName)
	assert.Equal(t, "image/jpeg", ok.got.ContentType)

	rejected := &fakeLiveClient{resp: &model.LivePhotoResponse{Error: "job closed"}}
	_, err = NewLiveUploader(rejected, "tc-9").Upload(context.Background(), "q3", local)
	assert.ErrorIs(t, err, ErrUploadRejected)
	assert.ErrorContains(t, err, "job closed")
}
