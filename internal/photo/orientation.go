package photo

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/webp"
	"go.uber.org/zap"
)

// Normalizer re-encodes photos so stored pixels are upright. Some viewers,
// the external job system among them, ignore the EXIF orientation tag.
type Normalizer struct {
	dir     string
	quality int
	log     *zap.Logger
}

// NewNormalizer writes normalized photos to dir, or the system temp
// directory when dir is empty.
func NewNormalizer(dir string, log *zap.Logger) *Normalizer {
	return &Normalizer{dir: dir, quality: 90, log: log}
}

// Normalize returns the path of an upright copy of the photo at path. It
// returns path itself when the photo is already upright or anything fails.
func (n *Normalizer) Normalize(path string) string {
	out, err := n.normalize(path)
	if err != nil {
		n.log.Warn("Photo orientation normalization failed, using original",
			zap.String("path", path), zap.Error(err))
		return path
	}
	return out
}

func (n *Normalizer) normalize(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	orientation := readOrientation(raw)
	if orientation <= 1 || orientation > 8 {
		return path, nil
	}

	img, err := decodeImageWithWebPFallback(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode photo: %w", err)
	}

	upright := applyOrientation(img, orientation)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, upright, &jpeg.Options{Quality: n.quality}); err != nil {
		return "", fmt.Errorf("failed to encode photo: %w", err)
	}

	dir := n.dir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "upright-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create normalized file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write normalized file: %w", err)
	}
	return f.Name(), nil
}

// readOrientation returns the EXIF orientation tag, or 0 when absent.
func readOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

func decodeImageWithWebPFallback(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, err
}

// applyOrientation maps the stored pixels to display orientation. The
// affine maps take source coordinates to destination coordinates for an
// origin-based w x h source.
func applyOrientation(src image.Image, orientation int) image.Image {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	base := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(base, base.Bounds(), src, b.Min, xdraw.Src)

	var m f64.Aff3
	swap := false
	switch orientation {
	case 2:
		m = f64.Aff3{-1, 0, w, 0, 1, 0}
	case 3:
		m = f64.Aff3{-1, 0, w, 0, -1, h}
	case 4:
		m = f64.Aff3{1, 0, 0, 0, -1, h}
	case 5:
		m, swap = f64.Aff3{0, 1, 0, 1, 0, 0}, true
	case 6:
		m, swap = f64.Aff3{0, -1, h, 1, 0, 0}, true
	case 7:
		m, swap = f64.Aff3{0, -1, h, -1, 0, w}, true
	case 8:
		m, swap = f64.Aff3{0, 1, 0, -1, 0, w}, true
	default:
		return base
	}

	dw, dh := b.Dx(), b.Dy()
	if swap {
		dw, dh = dh, dw
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.NearestNeighbor.Transform(dst, m, base, base.Bounds(), xdraw.Src, nil)
	return dst
}
