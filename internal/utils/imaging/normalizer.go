package imaging

import (
	"bytes"
	"fmt"

	img "github.com/disintegration/imaging"
)

const (
	// MaxLongEdge bounds the longest side of a normalized receipt image.
	MaxLongEdge = 1280

	// JPEGQuality is the fixed re-encode quality.
	JPEGQuality = 90
)

// Normalize decodes a receipt photo in any registered format, downsizes it so
// the long edge is at most MaxLongEdge (aspect ratio preserved, Lanczos
// resampling), and re-encodes it as JPEG.
//
// CAUTION: no sharpening or other filters; they degrade downstream extraction.
func Normalize(raw []byte) ([]byte, error) {
	src, err := img.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode receipt image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > MaxLongEdge || height > MaxLongEdge {
		if width >= height {
			src = img.Resize(src, MaxLongEdge, 0, img.Lanczos)
		} else {
			src = img.Resize(src, 0, MaxLongEdge, img.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := img.Encode(&buf, src, img.JPEG, img.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode receipt image: %w", err)
	}

	return buf.Bytes(), nil
}
