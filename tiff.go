package hdrpq

import (
	"bytes"
	"errors"
	"image"

	"golang.org/x/image/tiff"
)

// DecodeTIFF decodes an 8/16-bit integer TIFF into a float32 PixelBuffer.
// Samples are taken as linear scRGB, full scale maps to 1.0.
func DecodeTIFF(data []byte) (*PixelBuffer, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return pixelBufferFromImage(img)
}

func pixelBufferFromImage(img image.Image) (*PixelBuffer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, errors.New("invalid TIFF dimensions")
	}
	out, err := NewPixelBuffer(w, h, FormatFloat32)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b2, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.SetRGB(x, y, float32(r)/65535.0, float32(g)/65535.0, float32(b2)/65535.0)
		}
	}
	return out, nil
}
