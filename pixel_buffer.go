package hdrpq

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NewPixelBuffer allocates a tightly packed RGBA buffer.
func NewPixelBuffer(width, height int, format ComponentFormat) (*PixelBuffer, error) {
	bpc := format.BytesPerComponent()
	if bpc == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if uint64(width)*uint64(height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrAllocation, width, height, MaxPixels)
	}
	stride := width * 4 * bpc
	return &PixelBuffer{
		Width:      width,
		Height:     height,
		Stride:     stride,
		Format:     format,
		Components: 4,
		Pix:        make([]byte, stride*height),
	}, nil
}

// Validate checks format and geometry of the buffer.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil pixel buffer", ErrInvalidDimensions)
	}
	bpc := b.Format.BytesPerComponent()
	if bpc == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, b.Format)
	}
	if b.Components != 3 && b.Components != 4 {
		return fmt.Errorf("%w: %d components per pixel", ErrUnsupportedFormat, b.Components)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, b.Width, b.Height)
	}
	if uint64(b.Width)*uint64(b.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrAllocation, b.Width, b.Height, MaxPixels)
	}
	rowBytes := b.rowBytes()
	if b.Stride < rowBytes {
		return fmt.Errorf("%w: stride %d is less than row size %d", ErrInvalidDimensions, b.Stride, rowBytes)
	}
	if need := uint64(b.Stride)*uint64(b.Height-1) + uint64(rowBytes); uint64(len(b.Pix)) < need {
		return fmt.Errorf("%w: buffer has %d bytes, %d required", ErrInvalidDimensions, len(b.Pix), need)
	}
	return nil
}

func (b *PixelBuffer) rowBytes() int {
	return b.Width * b.Components * b.Format.BytesPerComponent()
}

func (b *PixelBuffer) offset(x, y, c int) int {
	return y*b.Stride + (x*b.Components+c)*b.Format.BytesPerComponent()
}

// Component returns component c of pixel (x, y) as float32.
func (b *PixelBuffer) Component(x, y, c int) float32 {
	off := b.offset(x, y, c)
	if b.Format == FormatFloat16 {
		return halfToFloat32(binary.LittleEndian.Uint16(b.Pix[off:]))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b.Pix[off:]))
}

// SetComponent stores v as component c of pixel (x, y), float16 buffers round to nearest even.
func (b *PixelBuffer) SetComponent(x, y, c int, v float32) {
	off := b.offset(x, y, c)
	if b.Format == FormatFloat16 {
		binary.LittleEndian.PutUint16(b.Pix[off:], float32ToHalf(v))
		return
	}
	binary.LittleEndian.PutUint32(b.Pix[off:], math.Float32bits(v))
}

// SetRGB stores linear scRGB values of pixel (x, y), alpha is set to 1 if present.
func (b *PixelBuffer) SetRGB(x, y int, r, g, bl float32) {
	b.SetComponent(x, y, 0, r)
	b.SetComponent(x, y, 1, g)
	b.SetComponent(x, y, 2, bl)
	if b.Components == 4 {
		b.SetComponent(x, y, 3, 1)
	}
}

// readRGBFloat32 decodes pixel x of a row slice that starts at the first byte of the row.
func readRGBFloat32(row []byte, x, components int) rgb {
	off := x * components * 4
	return rgb{
		r: math.Float32frombits(binary.LittleEndian.Uint32(row[off:])),
		g: math.Float32frombits(binary.LittleEndian.Uint32(row[off+4:])),
		b: math.Float32frombits(binary.LittleEndian.Uint32(row[off+8:])),
	}
}

func readRGBFloat16(row []byte, x, components int) rgb {
	off := x * components * 2
	return rgb{
		r: halfToFloat32(binary.LittleEndian.Uint16(row[off:])),
		g: halfToFloat32(binary.LittleEndian.Uint16(row[off+2:])),
		b: halfToFloat32(binary.LittleEndian.Uint16(row[off+4:])),
	}
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	mant := int32(h & 0x03FF)

	if exp == 0 {
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03FF
	} else if exp == 31 {
		if mant == 0 {
			return math.Float32frombits((sign << 31) | 0x7F800000)
		}
		return math.Float32frombits((sign << 31) | 0x7F800000 | (uint32(mant) << 13))
	}

	exp = exp + (127 - 15)
	mant <<= 13
	bits := (sign << 31) | (uint32(exp) << 23) | uint32(mant)
	return math.Float32frombits(bits)
}

func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case bits&0x7FFFFFFF > 0x7F800000: // NaN
		return sign | 0x7E00
	case exp >= 31:
		return sign | 0x7C00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		h := mant >> shift
		rem := mant & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && h&1 == 1) {
			h++
		}
		return sign | uint16(h)
	default:
		h := uint32(exp)<<10 | mant>>13
		rem := mant & 0x1FFF
		if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
			h++ // may carry into exponent, up to infinity
		}
		return sign | uint16(h)
	}
}
