package hdrpq

import (
	"errors"
	"math"
	"testing"
)

func TestHalfRoundTrip(t *testing.T) {
	cases := []struct {
		f float32
		h uint16
	}{
		{f: 0, h: 0x0000},
		{f: 1, h: 0x3C00},
		{f: -2, h: 0xC000},
		{f: 0.5, h: 0x3800},
		{f: 65504, h: 0x7BFF},
		{f: 5.9604645e-08, h: 0x0001}, // smallest subnormal
		{f: float32(math.Inf(1)), h: 0x7C00},
	}
	for _, c := range cases {
		if h := float32ToHalf(c.f); h != c.h {
			t.Fatalf("float32ToHalf(%v): got %#04x want %#04x", c.f, h, c.h)
		}
		if f := halfToFloat32(c.h); f != c.f {
			t.Fatalf("halfToFloat32(%#04x): got %v want %v", c.h, f, c.f)
		}
	}

	if h := float32ToHalf(1e6); h != 0x7C00 {
		t.Fatalf("overflow: got %#04x", h)
	}
	if h := float32ToHalf(1e-9); h != 0 {
		t.Fatalf("underflow: got %#04x", h)
	}
	if f := halfToFloat32(float32ToHalf(float32(math.NaN()))); !math.IsNaN(float64(f)) {
		t.Fatalf("NaN: got %v", f)
	}

	// Every finite half value survives a round trip.
	for h := 0; h < 0x10000; h++ {
		if h&0x7C00 == 0x7C00 {
			continue
		}
		if got := float32ToHalf(halfToFloat32(uint16(h))); got != uint16(h) {
			t.Fatalf("round trip %#04x: got %#04x", h, got)
		}
	}
}

func TestPixelBufferComponents(t *testing.T) {
	for _, format := range []ComponentFormat{FormatFloat32, FormatFloat16} {
		b, err := NewPixelBuffer(3, 2, format)
		if err != nil {
			t.Fatal(err)
		}
		if b.Stride != 3*4*format.BytesPerComponent() {
			t.Fatalf("%s: unexpected stride %d", format, b.Stride)
		}
		b.SetRGB(2, 1, 0.5, 2, 4)
		if b.Component(2, 1, 0) != 0.5 || b.Component(2, 1, 1) != 2 || b.Component(2, 1, 2) != 4 || b.Component(2, 1, 3) != 1 {
			t.Fatalf("%s: unexpected components", format)
		}
		if b.Component(1, 1, 0) != 0 {
			t.Fatalf("%s: neighbor pixel modified", format)
		}
		if err := b.Validate(); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
	}
}

func TestPixelBufferValidate(t *testing.T) {
	valid := func() *PixelBuffer {
		b, err := NewPixelBuffer(4, 3, FormatFloat32)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	cases := []struct {
		name   string
		modify func(b *PixelBuffer)
		want   error
	}{
		{name: "format", modify: func(b *PixelBuffer) { b.Format = FormatUnspecified }, want: ErrUnsupportedFormat},
		{name: "components", modify: func(b *PixelBuffer) { b.Components = 2 }, want: ErrUnsupportedFormat},
		{name: "zero width", modify: func(b *PixelBuffer) { b.Width = 0 }, want: ErrInvalidDimensions},
		{name: "negative height", modify: func(b *PixelBuffer) { b.Height = -1 }, want: ErrInvalidDimensions},
		{name: "stride", modify: func(b *PixelBuffer) { b.Stride-- }, want: ErrInvalidDimensions},
		{name: "short buffer", modify: func(b *PixelBuffer) { b.Pix = b.Pix[:len(b.Pix)-1] }, want: ErrInvalidDimensions},
		{name: "too large", modify: func(b *PixelBuffer) { b.Width, b.Height = 1<<20, 1<<20 }, want: ErrAllocation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := valid()
			c.modify(b)
			if err := b.Validate(); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}

	// Last row may be shorter than stride.
	b := valid()
	b.Stride += 8
	b.Pix = make([]byte, b.Stride*2+b.rowBytes())
	if err := b.Validate(); err != nil {
		t.Fatal(err)
	}

	var nilBuf *PixelBuffer
	if err := nilBuf.Validate(); !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("nil buffer: got %v", err)
	}
}

func TestNewPixelBufferInvalid(t *testing.T) {
	if _, err := NewPixelBuffer(1, 1, ComponentFormat(42)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v", err)
	}
	if _, err := NewPixelBuffer(0, 1, FormatFloat32); !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("got %v", err)
	}
}
