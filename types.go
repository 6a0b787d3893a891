package hdrpq

import "fmt"

// ComponentFormat identifies the storage of a single color component.
type ComponentFormat int

const (
	FormatUnspecified ComponentFormat = iota
	FormatFloat32
	FormatFloat16
)

// BytesPerComponent returns the size of one component, or 0 if format is unknown.
func (f ComponentFormat) BytesPerComponent() int {
	switch f {
	case FormatFloat32:
		return 4
	case FormatFloat16:
		return 2
	default:
		return 0
	}
}

func (f ComponentFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatFloat16:
		return "float16"
	default:
		return fmt.Sprintf("ComponentFormat(%d)", int(f))
	}
}

// PixelBuffer is a decoded linear-light scRGB image.
// Components are little-endian, interleaved R, G, B and optionally A.
type PixelBuffer struct {
	Width      int
	Height     int
	Stride     int // bytes per row, may exceed Width*Components*BytesPerComponent
	Format     ComponentFormat
	Components int // 3 or 4, alpha is ignored
	Pix        []byte
}

// ConvertedImage holds BT.2100 PQ encoded samples, 3 interleaved uint16 per pixel.
type ConvertedImage struct {
	Width  int
	Height int
	Bits   int // storage bit depth of samples in Pix
	Pix    []uint16
}

// HDRMetadata is the static HDR metadata in nits.
type HDRMetadata struct {
	MaxCLL  uint16
	MaxPALL uint16
}

// CICP describes coding-independent code points (ITU-T H.273).
type CICP struct {
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
	FullRange               bool
}

// CICPBT2100PQ tags output as BT.2020 primaries, PQ transfer, RGB, full range.
var CICPBT2100PQ = CICP{
	ColorPrimaries:          9,
	TransferCharacteristics: 16,
	MatrixCoefficients:      0,
	FullRange:               true,
}

// RowRange is a half-open range of rows [Start, Stop).
type RowRange struct {
	Start int
	Stop  int
}

// Len returns number of rows in range.
func (r RowRange) Len() int { return r.Stop - r.Start }

// Result is the outcome of a conversion.
type Result struct {
	Image    *ConvertedImage
	Metadata HDRMetadata
	Stats    Stats
	Workers  int
}
