package hdrpq

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// SourceFormat identifies a supported input container.
type SourceFormat int

const (
	SourceUnknown SourceFormat = iota
	SourceEXR
	SourceTIFF
	// SourceZstd is a zstd frame wrapping an EXR or TIFF file.
	SourceZstd
)

func (f SourceFormat) String() string {
	switch f {
	case SourceEXR:
		return "exr"
	case SourceTIFF:
		return "tiff"
	case SourceZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

var (
	exrSig    = []byte{0x76, 0x2F, 0x31, 0x01}
	tiffSigLE = []byte{'I', 'I', 0x2A, 0x00}
	tiffSigBE = []byte{'M', 'M', 0x00, 0x2A}
	zstdSig   = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// maxZstdSource limits decompressed size of zstd wrapped sources.
const maxZstdSource = 4 << 30

var zstdDecPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxZstdSource))
		if err != nil {
			return nil
		}
		return dec
	},
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, ok := zstdDecPool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		return nil, errors.New("zstd decoder unavailable")
	}
	defer zstdDecPool.Put(dec)

	return dec.DecodeAll(data, nil)
}

// DetectFormat sniffs the container format from leading bytes.
func DetectFormat(data []byte) SourceFormat {
	switch {
	case bytes.HasPrefix(data, exrSig):
		return SourceEXR
	case bytes.HasPrefix(data, tiffSigLE), bytes.HasPrefix(data, tiffSigBE):
		return SourceTIFF
	case bytes.HasPrefix(data, zstdSig):
		return SourceZstd
	default:
		return SourceUnknown
	}
}

// Decode decodes an EXR or TIFF image into a PixelBuffer.
// Files compressed with zstd are unwrapped first.
func Decode(data []byte) (*PixelBuffer, error) {
	switch f := DetectFormat(data); f {
	case SourceEXR:
		return DecodeEXR(data)
	case SourceTIFF:
		return DecodeTIFF(data)
	case SourceZstd:
		raw, err := decompressZstd(data)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if DetectFormat(raw) == SourceZstd {
			return nil, fmt.Errorf("%w: nested zstd frames", ErrUnsupportedFormat)
		}
		return Decode(raw)
	default:
		return nil, fmt.Errorf("%w: unrecognized container", ErrUnsupportedFormat)
	}
}

// DecodeFile reads and decodes an image file.
func DecodeFile(path string) (*PixelBuffer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// PNGInfo describes HDR signalling found in a PNG stream.
type PNGInfo struct {
	Width    int
	Height   int
	BitDepth int
	CICP     *CICP
	Metadata *HDRMetadata
	ICCName  string
}

// IsPQ tells whether the stream is tagged with the PQ transfer function.
func (i *PNGInfo) IsPQ() bool {
	return i.CICP != nil && i.CICP.TransferCharacteristics == CICPBT2100PQ.TransferCharacteristics
}

// ReadPNGInfo performs a streaming scan of PNG chunks up to the first IDAT
// and collects IHDR, cICP, cLLi and iCCP information.
func ReadPNGInfo(r io.Reader) (*PNGInfo, error) {
	br := bufio.NewReader(r)
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, pngSignature) {
		return nil, errors.New("not a PNG stream")
	}

	info := &PNGInfo{}
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return info, nil
			}
			return nil, err
		}
		length := binary.BigEndian.Uint32(hdr[:4])
		typ := string(hdr[4:8])
		if typ == "IDAT" || typ == "IEND" {
			return info, nil
		}
		if length > 1<<24 {
			return nil, fmt.Errorf("PNG chunk %q too large: %d", typ, length)
		}
		payload := make([]byte, length+4) // with CRC
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, err
		}
		crc := crc32.NewIEEE()
		_, _ = crc.Write(hdr[4:8])
		_, _ = crc.Write(payload[:length])
		if crc.Sum32() != binary.BigEndian.Uint32(payload[length:]) {
			return nil, fmt.Errorf("PNG chunk %q CRC mismatch", typ)
		}
		payload = payload[:length]

		switch typ {
		case "IHDR":
			if len(payload) < 13 {
				return nil, errors.New("invalid IHDR chunk")
			}
			info.Width = int(binary.BigEndian.Uint32(payload[0:4]))
			info.Height = int(binary.BigEndian.Uint32(payload[4:8]))
			info.BitDepth = int(payload[8])
		case "cICP":
			if len(payload) != 4 {
				return nil, errors.New("invalid cICP chunk")
			}
			info.CICP = &CICP{
				ColorPrimaries:          payload[0],
				TransferCharacteristics: payload[1],
				MatrixCoefficients:      payload[2],
				FullRange:               payload[3] == 1,
			}
		case "cLLi":
			if len(payload) != 8 {
				return nil, errors.New("invalid cLLi chunk")
			}
			info.Metadata = &HDRMetadata{
				MaxCLL:  uint16(binary.BigEndian.Uint32(payload[0:4]) / cLLiScale),
				MaxPALL: uint16(binary.BigEndian.Uint32(payload[4:8]) / cLLiScale),
			}
		case "iCCP":
			if i := bytes.IndexByte(payload, 0); i > 0 {
				info.ICCName = string(payload[:i])
			}
		}
	}
}
