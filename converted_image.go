package hdrpq

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

func newConvertedImage(width, height, bits int) (*ConvertedImage, error) {
	samples := uint64(width) * uint64(height) * 3
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if samples/3 > MaxPixels || samples > math.MaxInt {
		return nil, fmt.Errorf("%w: output buffer of %d samples", ErrAllocation, samples)
	}
	return &ConvertedImage{
		Width:  width,
		Height: height,
		Bits:   bits,
		Pix:    make([]uint16, int(samples)),
	}, nil
}

// RGB returns encoded samples of pixel (x, y).
func (m *ConvertedImage) RGB(x, y int) (r, g, b uint16) {
	i := (y*m.Width + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// Row returns samples of row y.
func (m *ConvertedImage) Row(y int) []uint16 {
	n := m.Width * 3
	return m.Pix[y*n : (y+1)*n]
}

// Image returns an opaque 16-bit image of the PQ signal.
// Samples of 8-bit images are scaled to the 16-bit range.
func (m *ConvertedImage) Image() *image.NRGBA64 {
	out := image.NewNRGBA64(image.Rect(0, 0, m.Width, m.Height))
	scale := uint16(1)
	if m.Bits == 8 {
		scale = 257
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, g, b := m.RGB(x, y)
			out.SetNRGBA64(x, y, color.NRGBA64{R: r * scale, G: g * scale, B: b * scale, A: 0xFFFF})
		}
	}
	return out
}

// encoderImage returns an opaque image with samples at storage bit depth,
// so that PNG encoders pick 8 or 16-bit truecolor accordingly.
func (m *ConvertedImage) encoderImage() image.Image {
	if m.Bits != 8 {
		return m.Image()
	}
	out := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		row := m.Row(y)
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < m.Width; x++ {
			dst[x*4] = uint8(row[x*3])
			dst[x*4+1] = uint8(row[x*3+1])
			dst[x*4+2] = uint8(row[x*3+2])
			dst[x*4+3] = 0xFF
		}
	}
	return out
}
