package hdrpq

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// DefaultPreviewSize is the bounding box of preview thumbnails.
const DefaultPreviewSize = 512

// Thumbnail returns an 8-bit downscaled image of the PQ signal that fits into maxW x maxH.
// Aspect ratio is preserved, images that already fit are not upscaled.
func Thumbnail(img *ConvertedImage, maxW, maxH uint) (*image.NRGBA, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, errors.New("empty image")
	}
	if maxW == 0 || maxH == 0 {
		return nil, errors.New("invalid thumbnail dimensions")
	}

	scaled := resize.Thumbnail(maxW, maxH, img.Image(), resize.Lanczos3)

	b := scaled.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), scaled, b.Min, draw.Src)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xFF
	}
	return out, nil
}

// WritePreview writes a PNG thumbnail of img to path.
func WritePreview(path string, img *ConvertedImage, size uint) error {
	if size == 0 {
		size = DefaultPreviewSize
	}
	thumb, err := Thumbnail(img, size, size)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), buf.Bytes(), 0o644)
}
