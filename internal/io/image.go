package ioutils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageService prepares artwork for embedding in audio tags.
//
// Resolver thumbnails arrive as JPEG, PNG or WebP and are often much
// larger than players need, so they are scaled down and re-encoded as
// JPEG before being written into an APIC frame.
type ImageService struct {
	quality int
}

// NewImageService creates an ImageService that encodes JPEG at quality 90.
func NewImageService() *ImageService {
	return &ImageService{quality: 90}
}

// PrepareArtwork decodes data, scales it to fit within maxSize x maxSize
// (keeping aspect ratio, never enlarging) and returns JPEG bytes.
// A non-positive maxSize only converts.
func (s *ImageService) PrepareArtwork(ctx context.Context, data []byte, maxSize int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if maxSize > 0 {
		img = fit(img, maxSize, maxSize)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fit(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxWidth && height <= maxHeight {
		return img
	}

	ratio := float64(width) / float64(height)
	if float64(maxWidth)/float64(maxHeight) > ratio {
		width = int(float64(maxHeight) * ratio)
		height = maxHeight
	} else {
		height = int(float64(maxWidth) / ratio)
		width = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
