// Package imaging normalizes the photos attached to purchase records.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/erazemk/garrison/internal/model"
)

// MaxUploadBytes caps the size of an uploaded photo.
const MaxUploadBytes = 5 << 20

// MaxDimension is the maximum width or height of a stored photo.
const MaxDimension = 1024

// JPEGQuality is the compression quality of stored photos.
const JPEGQuality = 85

// StoredMIME is the content type of every stored photo.
const StoredMIME = "image/jpeg"

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Photo is a normalized purchase photo.
type Photo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Process reads an uploaded photo, checks its format from the bytes
// themselves, downscales it to MaxDimension and re-encodes it as JPEG.
// Rejected input returns a validation error.
func Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, model.Invalid("image", fmt.Sprintf("must be at most %d MB", MaxUploadBytes>>20))
	}

	if detected := http.DetectContentType(data); !accepted[detected] {
		return nil, model.Invalid("image", "must be JPEG, PNG or WebP, got "+detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, model.Invalid("image", "could not be decoded")
	}
	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding photo: %w", err)
	}

	b := img.Bounds()
	return &Photo{Data: buf.Bytes(), MIME: StoredMIME, Width: b.Dx(), Height: b.Dy()}, nil
}

// downscale fits img inside maxDim x maxDim keeping its aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(h*maxDim/w, 1)
	} else {
		newW = max(w*maxDim/h, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
