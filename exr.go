package hdrpq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const exrMagic = 20000630

const (
	exrCompressionNone = 0
	exrCompressionZips = 2
	exrCompressionZip  = 3
)

const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

const (
	exrChanOther = -2
	exrChanY     = -1
	exrChanR     = 0
	exrChanG     = 1
	exrChanB     = 2
)

type exrChannel struct {
	name      string
	pixelType int32
	xSampling int32
	ySampling int32
	role      int
}

// exrHeader holds the attributes needed to decode a single-part scanline file.
type exrHeader struct {
	channels    []exrChannel
	window      [4]int32 // xMin, yMin, xMax, yMax
	hasWindow   bool
	compression byte
}

func (h *exrHeader) size() (width, height int) {
	return int(h.window[2]-h.window[0]) + 1, int(h.window[3]-h.window[1]) + 1
}

// linesPerBlock returns the number of scanlines stored in one chunk.
func (h *exrHeader) linesPerBlock() int {
	if h.compression == exrCompressionZip {
		return 16
	}
	return 1
}

func unsupportedEXR(what string) error {
	return fmt.Errorf("%w: OpenEXR %s", ErrUnsupportedFormat, what)
}

func readEXRHeader(r *bytes.Reader) (*exrHeader, error) {
	magic, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if magic != exrMagic {
		return nil, errors.New("not an OpenEXR file")
	}
	version, err := readU32(r)
	if err != nil {
		return nil, err
	}
	switch {
	case version&0x200 != 0:
		return nil, unsupportedEXR("tiles")
	case version&0x400 != 0:
		return nil, unsupportedEXR("deep data")
	case version&0x800 != 0:
		return nil, unsupportedEXR("multipart")
	}

	h := &exrHeader{compression: exrCompressionNone}
	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		typ, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		size, err := readI32(r)
		if err != nil {
			return nil, err
		}
		if size < 0 || int64(size) > int64(r.Len()) {
			return nil, fmt.Errorf("invalid OpenEXR attribute %q size %d", name, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
		if err := h.setAttribute(name, typ, payload); err != nil {
			return nil, err
		}
	}

	if len(h.channels) == 0 {
		return nil, errors.New("OpenEXR missing channels")
	}
	if !h.hasWindow {
		return nil, errors.New("OpenEXR missing dataWindow")
	}
	if !hasRGBOrY(h.channels) {
		return nil, unsupportedEXR("image without R/G/B or Y channels")
	}
	for _, ch := range h.channels {
		if ch.xSampling != 1 || ch.ySampling != 1 {
			return nil, unsupportedEXR("subsampled channels")
		}
	}
	switch h.compression {
	case exrCompressionNone, exrCompressionZips, exrCompressionZip:
	default:
		return nil, unsupportedEXR(fmt.Sprintf("compression %d", h.compression))
	}
	if w, ht := h.size(); w <= 0 || ht <= 0 {
		return nil, fmt.Errorf("%w: OpenEXR data window %v", ErrInvalidDimensions, h.window)
	}

	return h, nil
}

func (h *exrHeader) setAttribute(name, typ string, payload []byte) error {
	switch name {
	case "channels":
		if typ != "chlist" {
			return fmt.Errorf("unexpected OpenEXR channels type %q", typ)
		}
		ch, err := parseEXRChannels(payload)
		if err != nil {
			return err
		}
		h.channels = ch
	case "dataWindow":
		if typ != "box2i" || len(payload) != 16 {
			return errors.New("invalid OpenEXR dataWindow")
		}
		for i := range h.window {
			h.window[i] = int32(binary.LittleEndian.Uint32(payload[i*4:]))
		}
		h.hasWindow = true
	case "compression":
		if typ != "compression" || len(payload) < 1 {
			return errors.New("invalid OpenEXR compression")
		}
		h.compression = payload[0]
	case "tiles":
		return unsupportedEXR("tiles")
	}
	return nil
}

// DecodeEXR decodes a scanline OpenEXR image into a linear RGBA PixelBuffer.
//
// If all color channels are half floats, the buffer keeps them as FormatFloat16,
// otherwise FormatFloat32 is used. Luminance-only images are expanded to RGB.
func DecodeEXR(data []byte) (*PixelBuffer, error) {
	r := bytes.NewReader(data)
	h, err := readEXRHeader(r)
	if err != nil {
		return nil, err
	}

	width, height := h.size()
	lines := h.linesPerBlock()
	offsets := make([]uint64, (height+lines-1)/lines)
	for i := range offsets {
		if offsets[i], err = readU64(r); err != nil {
			return nil, err
		}
	}

	dst, err := NewPixelBuffer(width, height, exrBufferFormat(h.channels))
	if err != nil {
		return nil, err
	}
	exrFillAlpha(dst)

	for _, off := range offsets {
		if off == 0 {
			continue
		}
		if err := exrReadBlock(r, h, dst, int64(off)); err != nil {
			return nil, err
		}
	}

	return dst, nil
}

// exrReadBlock decodes the scanline chunk stored at off into dst.
func exrReadBlock(r *bytes.Reader, h *exrHeader, dst *PixelBuffer, off int64) error {
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	y, err := readI32(r)
	if err != nil {
		return err
	}
	size, err := readI32(r)
	if err != nil {
		return err
	}
	if size < 0 || int64(size) > int64(r.Len()) {
		return fmt.Errorf("invalid OpenEXR block size %d", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return err
	}

	startY := int(y - h.window[1])
	if startY < 0 || startY >= dst.Height {
		return fmt.Errorf("OpenEXR scanline %d out of data window", y)
	}
	lines := h.linesPerBlock()
	if startY+lines > dst.Height {
		lines = dst.Height - startY
	}

	unpacked, err := exrDecompress(h.compression, raw, exrExpectedBlockBytes(dst.Width, lines, h.channels))
	if err != nil {
		return err
	}
	return exrDecodeBlock(dst, h.channels, startY, dst.Width, lines, unpacked)
}

// exrBufferFormat picks float16 storage only when no color channel needs more precision.
func exrBufferFormat(channels []exrChannel) ComponentFormat {
	for _, ch := range channels {
		if ch.role != exrChanOther && ch.pixelType != exrPixelHalf {
			return FormatFloat32
		}
	}
	return FormatFloat16
}

func exrFillAlpha(dst *PixelBuffer) {
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			dst.SetComponent(x, y, 3, 1)
		}
	}
}

func parseEXRChannels(data []byte) ([]exrChannel, error) {
	r := bytes.NewReader(data)
	var channels []exrChannel
	for {
		name, err := readNullString(r)
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		pixelType, err := readI32(r)
		if err != nil {
			return nil, err
		}
		if pixelType != exrPixelHalf && pixelType != exrPixelFloat && pixelType != exrPixelUint {
			return nil, fmt.Errorf("unsupported OpenEXR pixel type %d", pixelType)
		}
		if _, err := r.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := r.Seek(3, io.SeekCurrent); err != nil {
			return nil, err
		}
		xSampling, err := readI32(r)
		if err != nil {
			return nil, err
		}
		ySampling, err := readI32(r)
		if err != nil {
			return nil, err
		}
		role := exrChanOther
		switch strings.ToUpper(name) {
		case "R":
			role = exrChanR
		case "G":
			role = exrChanG
		case "B":
			role = exrChanB
		case "Y":
			role = exrChanY
		}
		channels = append(channels, exrChannel{
			name:      name,
			pixelType: pixelType,
			xSampling: xSampling,
			ySampling: ySampling,
			role:      role,
		})
	}
	return channels, nil
}

func exrExpectedBlockBytes(width, lines int, channels []exrChannel) int {
	total := 0
	for _, ch := range channels {
		bpp := 0
		switch ch.pixelType {
		case exrPixelHalf:
			bpp = 2
		case exrPixelFloat, exrPixelUint:
			bpp = 4
		}
		total += width * lines * bpp
	}
	return total
}

func exrDecompress(compression byte, data []byte, expected int) ([]byte, error) {
	switch compression {
	case exrCompressionNone:
		if expected > 0 && len(data) != expected {
			return nil, errors.New("unexpected OpenEXR block size")
		}
		return data, nil
	case exrCompressionZips, exrCompressionZip:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		uncompressed, err := io.ReadAll(zr)
		if err != nil {
			return nil, err
		}
		if expected > 0 && len(uncompressed) != expected {
			return nil, errors.New("unexpected OpenEXR decompressed size")
		}
		if len(uncompressed)%2 != 0 {
			return nil, errors.New("invalid OpenEXR ZIP payload size")
		}
		undoPredictor(uncompressed)
		return unshuffleBytes(uncompressed), nil
	default:
		return nil, errors.New("unsupported OpenEXR compression")
	}
}

func undoPredictor(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = byte(int(data[i]) + int(data[i-1]) - 128)
	}
}

func unshuffleBytes(data []byte) []byte {
	n := len(data) / 2
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		out[2*i] = data[i]
		out[2*i+1] = data[i+n]
	}
	return out
}

func exrDecodeBlock(dst *PixelBuffer, channels []exrChannel, startY, width, lines int, data []byte) error {
	offset := 0
	for row := 0; row < lines; row++ {
		y := startY + row
		for _, ch := range channels {
			bpp := 0
			switch ch.pixelType {
			case exrPixelHalf:
				bpp = 2
			case exrPixelFloat, exrPixelUint:
				bpp = 4
			default:
				return errors.New("unsupported OpenEXR channel pixel type")
			}
			lineBytes := width * bpp
			if offset+lineBytes > len(data) {
				return errors.New("OpenEXR block truncated")
			}
			line := data[offset : offset+lineBytes]
			offset += lineBytes

			switch ch.role {
			case exrChanR, exrChanG, exrChanB, exrChanY:
				if err := exrApplyLine(dst, ch.role, y, width, ch.pixelType, line); err != nil {
					return err
				}
			default:
				continue
			}
		}
	}
	return nil
}

func exrApplyLine(dst *PixelBuffer, role int, y, width int, pixelType int32, line []byte) error {
	first, last := role, role
	if role == exrChanY {
		first, last = exrChanR, exrChanB
	}

	for x := 0; x < width; x++ {
		if pixelType == exrPixelHalf && dst.Format == FormatFloat16 {
			// Keep half samples bit-exact.
			h := line[x*2 : x*2+2]
			for c := first; c <= last; c++ {
				copy(dst.Pix[dst.offset(x, y, c):], h)
			}
			continue
		}

		var v float32
		switch pixelType {
		case exrPixelHalf:
			off := x * 2
			v = halfToFloat32(binary.LittleEndian.Uint16(line[off : off+2]))
		case exrPixelFloat:
			off := x * 4
			v = math.Float32frombits(binary.LittleEndian.Uint32(line[off : off+4]))
		case exrPixelUint:
			off := x * 4
			v = float32(binary.LittleEndian.Uint32(line[off : off+4]))
		default:
			return errors.New("unsupported OpenEXR pixel type")
		}
		for c := first; c <= last; c++ {
			dst.SetComponent(x, y, c, v)
		}
	}
	return nil
}

func hasRGBOrY(channels []exrChannel) bool {
	for _, ch := range channels {
		if ch.role == exrChanR || ch.role == exrChanG || ch.role == exrChanB || ch.role == exrChanY {
			return true
		}
	}
	return false
}

func readNullString(r *bytes.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}
