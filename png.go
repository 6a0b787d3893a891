package hdrpq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

const (
	// cLLi stores luminance in units of 0.0001 nits.
	cLLiScale = 10000
	// pngHeaderLen is the size of signature and IHDR chunk.
	pngHeaderLen = 8 + 4 + 4 + 13 + 4
)

// PNGOptions controls PNG encoding.
type PNGOptions struct {
	// CompressionLevel of image data, zero value is png.DefaultCompression.
	CompressionLevel png.CompressionLevel
	// CICP overrides color signalling, default is CICPBT2100PQ.
	CICP *CICP
	// ICCProfile is an optional profile embedded in iCCP chunk.
	ICCProfile []byte
	// ICCName is the iCCP profile name, default "BT.2100 PQ".
	ICCName string
	// SkipMetadata omits cLLi chunk.
	SkipMetadata bool
}

// EncodePNG writes img as truecolor PNG with cICP and cLLi chunks.
func EncodePNG(w io.Writer, img *ConvertedImage, meta HDRMetadata, opts ...func(o *PNGOptions)) error {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidDimensions)
	}
	if len(img.Pix) < img.Width*img.Height*3 {
		return fmt.Errorf("%w: image has %d samples", ErrInvalidDimensions, len(img.Pix))
	}
	if img.Bits != 8 && img.Bits != 16 {
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, img.Bits)
	}

	opt := PNGOptions{
		CICP:    &CICPBT2100PQ,
		ICCName: "BT.2100 PQ",
	}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	if opt.CICP == nil {
		opt.CICP = &CICPBT2100PQ
	}

	var chunks bytes.Buffer
	if err := writePNGChunk(&chunks, "cICP", cicpPayload(*opt.CICP)); err != nil {
		return err
	}
	if !opt.SkipMetadata {
		if err := writePNGChunk(&chunks, "cLLi", clliPayload(meta)); err != nil {
			return err
		}
	}
	if len(opt.ICCProfile) > 0 {
		iccp, err := iccpPayload(opt.ICCName, opt.ICCProfile, zlibLevel(opt.CompressionLevel))
		if err != nil {
			return err
		}
		if err := writePNGChunk(&chunks, "iCCP", iccp); err != nil {
			return err
		}
	}

	var encoded bytes.Buffer
	enc := png.Encoder{CompressionLevel: opt.CompressionLevel}
	if err := enc.Encode(&encoded, img.encoderImage()); err != nil {
		return err
	}

	out, err := insertPNGChunks(encoded.Bytes(), chunks.Bytes())
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// insertPNGChunks inserts serialized chunks after IHDR, before any image data.
func insertPNGChunks(pngData, chunks []byte) ([]byte, error) {
	if len(pngData) < pngHeaderLen || !bytes.HasPrefix(pngData, pngSignature) ||
		string(pngData[12:16]) != "IHDR" {
		return nil, errors.New("invalid png")
	}
	out := make([]byte, 0, len(pngData)+len(chunks))
	out = append(out, pngData[:pngHeaderLen]...)
	out = append(out, chunks...)
	out = append(out, pngData[pngHeaderLen:]...)
	return out, nil
}

func zlibLevel(l png.CompressionLevel) int {
	switch l {
	case png.NoCompression:
		return zlib.NoCompression
	case png.BestSpeed:
		return zlib.BestSpeed
	case png.BestCompression:
		return zlib.BestCompression
	default:
		return zlib.DefaultCompression
	}
}

// EncodePNGFile writes img to a PNG file at path.
func EncodePNGFile(path string, img *ConvertedImage, meta HDRMetadata, opts ...func(o *PNGOptions)) error {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img, meta, opts...); err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), buf.Bytes(), 0o644)
}

func cicpPayload(c CICP) []byte {
	full := byte(0)
	if c.FullRange {
		full = 1
	}
	return []byte{c.ColorPrimaries, c.TransferCharacteristics, c.MatrixCoefficients, full}
}

func clliPayload(meta HDRMetadata) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p[0:4], uint32(meta.MaxCLL)*cLLiScale)
	binary.BigEndian.PutUint32(p[4:8], uint32(meta.MaxPALL)*cLLiScale)
	return p
}

func iccpPayload(name string, profile []byte, level int) ([]byte, error) {
	if len(name) == 0 || len(name) > 79 {
		return nil, errors.New("iCCP profile name must be 1-79 bytes")
	}
	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte(0)
	buf.WriteByte(0) // deflate
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(profile); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePNGChunk(w io.Writer, typ string, payload []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	copy(hdr[4:], typ)
	crc := crc32.NewIEEE()
	_, _ = crc.Write(hdr[4:8])
	_, _ = crc.Write(payload)

	var tail [4]byte
	binary.BigEndian.PutUint32(tail[:], crc.Sum32())

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write(tail[:])
	return err
}
