package hdrpq

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/png"
	"math/rand"
	"path/filepath"
	"testing"
)

func randomConvertedImage(w, h, bits int, seed int64) *ConvertedImage {
	img, err := newConvertedImage(w, h, bits)
	if err != nil {
		panic(err)
	}
	rnd := rand.New(rand.NewSource(seed))
	limit := 1 << bits
	for i := range img.Pix {
		// Mix smooth and noisy content to exercise all filters.
		if i%7 == 0 {
			img.Pix[i] = uint16(rnd.Intn(limit))
		} else {
			img.Pix[i] = uint16((i * 37) % limit)
		}
	}
	return img
}

func TestEncodePNGDecodesBack(t *testing.T) {
	for _, bits := range []int{16, 8} {
		img := randomConvertedImage(37, 23, bits, int64(bits))

		var buf bytes.Buffer
		if err := EncodePNG(&buf, img, HDRMetadata{MaxCLL: 1000, MaxPALL: 400}); err != nil {
			t.Fatalf("encode %d-bit: %v", bits, err)
		}

		dec, err := png.Decode(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("decode %d-bit: %v", bits, err)
		}
		if b := dec.Bounds(); b.Dx() != img.Width || b.Dy() != img.Height {
			t.Fatalf("unexpected bounds %v", b)
		}

		scale := uint32(1)
		if bits == 8 {
			scale = 257
		}
		for y := 0; y < img.Height; y++ {
			for x := 0; x < img.Width; x++ {
				r, g, b, a := dec.At(x, y).RGBA()
				er, eg, eb := img.RGB(x, y)
				if r != uint32(er)*scale || g != uint32(eg)*scale || b != uint32(eb)*scale || a != 0xFFFF {
					t.Fatalf("%d-bit pixel (%d,%d): got %d,%d,%d want %d,%d,%d",
						bits, x, y, r, g, b, er, eg, eb)
				}
			}
		}
	}
}

func TestEncodePNGChunks(t *testing.T) {
	img := randomConvertedImage(4, 3, 16, 1)

	var buf bytes.Buffer
	err := EncodePNG(&buf, img, HDRMetadata{MaxCLL: 4000, MaxPALL: 350}, func(o *PNGOptions) {
		o.ICCProfile = []byte("fake profile bytes")
		o.ICCName = "Rec2100PQ"
	})
	if err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	if !bytes.HasPrefix(data, pngSignature) {
		t.Fatal("missing signature")
	}

	// cICP and cLLi must precede IDAT.
	idat := bytes.Index(data, []byte("IDAT"))
	for _, typ := range []string{"IHDR", "cICP", "cLLi", "iCCP"} {
		i := bytes.Index(data, []byte(typ))
		if i < 0 || i > idat {
			t.Fatalf("%s chunk missing or after IDAT", typ)
		}
	}
	if !bytes.Contains(data, []byte{0, 0, 0, 4, 'c', 'I', 'C', 'P', 9, 16, 0, 1}) {
		t.Fatal("unexpected cICP payload")
	}
	// 4000 and 350 nits in 0.0001 units.
	if !bytes.Contains(data, []byte{0, 0, 0, 8, 'c', 'L', 'L', 'i', 0x02, 0x62, 0x5A, 0x00, 0x00, 0x35, 0x67, 0xE0}) {
		t.Fatal("unexpected cLLi payload")
	}
	if !bytes.HasSuffix(data, []byte{0, 0, 0, 0, 'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}) {
		t.Fatal("missing IEND")
	}

	info, err := ReadPNGInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 4 || info.Height != 3 || info.BitDepth != 16 {
		t.Fatalf("unexpected header %+v", info)
	}
	if info.CICP == nil || *info.CICP != CICPBT2100PQ || !info.IsPQ() {
		t.Fatalf("unexpected cICP %+v", info.CICP)
	}
	if info.Metadata == nil || *info.Metadata != (HDRMetadata{MaxCLL: 4000, MaxPALL: 350}) {
		t.Fatalf("unexpected metadata %+v", info.Metadata)
	}
	if info.ICCName != "Rec2100PQ" {
		t.Fatalf("unexpected ICC name %q", info.ICCName)
	}
}

func TestEncodePNGSkipMetadata(t *testing.T) {
	img := randomConvertedImage(2, 2, 16, 2)
	var buf bytes.Buffer
	err := EncodePNG(&buf, img, HDRMetadata{MaxCLL: 1}, func(o *PNGOptions) { o.SkipMetadata = true })
	if err != nil {
		t.Fatal(err)
	}
	info, err := ReadPNGInfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if info.Metadata != nil || !info.IsPQ() {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestEncodePNGManyIDAT(t *testing.T) {
	// Noise does not compress, so the stream spans several IDAT chunks.
	img, err := newConvertedImage(512, 400, 16)
	if err != nil {
		t.Fatal(err)
	}
	rnd := rand.New(rand.NewSource(3))
	for i := range img.Pix {
		img.Pix[i] = uint16(rnd.Intn(1 << 16))
	}
	var buf bytes.Buffer
	err = EncodePNG(&buf, img, HDRMetadata{MaxCLL: 700, MaxPALL: 90}, func(o *PNGOptions) {
		o.CompressionLevel = png.BestSpeed
		o.ICCProfile = []byte("profile")
	})
	if err != nil {
		t.Fatal(err)
	}

	types := pngChunkTypes(t, buf.Bytes())
	if len(types) < 6 || types[0] != "IHDR" || types[1] != "cICP" || types[2] != "cLLi" || types[3] != "iCCP" {
		t.Fatalf("unexpected chunk order %v", types)
	}
	idat := 0
	for _, typ := range types[4 : len(types)-1] {
		if typ != "IDAT" {
			t.Fatalf("unexpected chunk %q among image data: %v", typ, types)
		}
		idat++
	}
	if idat < 2 || types[len(types)-1] != "IEND" {
		t.Fatalf("unexpected chunk layout %v", types)
	}

	dec, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := dec.At(511, 399).RGBA()
	if er, _, _ := img.RGB(511, 399); r != uint32(er) {
		t.Fatalf("last pixel: got %d want %d", r, er)
	}
}

// pngChunkTypes walks the chunk list and verifies lengths and CRCs.
func pngChunkTypes(t *testing.T, data []byte) []string {
	t.Helper()
	if !bytes.HasPrefix(data, pngSignature) {
		t.Fatal("missing signature")
	}
	var types []string
	for p := len(pngSignature); p < len(data); {
		if p+12 > len(data) {
			t.Fatalf("truncated chunk at %d", p)
		}
		n := int(binary.BigEndian.Uint32(data[p:]))
		end := p + 8 + n
		if end+4 > len(data) {
			t.Fatalf("chunk at %d overflows stream", p)
		}
		if crc := crc32.ChecksumIEEE(data[p+4 : end]); crc != binary.BigEndian.Uint32(data[end:]) {
			t.Fatalf("bad CRC of %q chunk", data[p+4:p+8])
		}
		types = append(types, string(data[p+4:p+8]))
		p = end + 4
	}
	return types
}

func TestEncodePNGHeader(t *testing.T) {
	for _, bits := range []int{8, 16} {
		var buf bytes.Buffer
		if err := EncodePNG(&buf, randomConvertedImage(3, 2, bits, 6), HDRMetadata{}); err != nil {
			t.Fatal(err)
		}
		data := buf.Bytes()
		// Bit depth and color type follow width and height in IHDR.
		if data[24] != byte(bits) || data[25] != 2 {
			t.Fatalf("%d-bit: IHDR depth %d, color type %d", bits, data[24], data[25])
		}
	}
}

func TestInsertPNGChunks(t *testing.T) {
	if _, err := insertPNGChunks([]byte("short"), nil); err == nil {
		t.Fatal("expected error for short input")
	}
	bogus := append(append([]byte(nil), pngSignature...), make([]byte, 25)...)
	copy(bogus[12:], "IDAT")
	if _, err := insertPNGChunks(bogus, nil); err == nil {
		t.Fatal("expected error without IHDR")
	}
}

func TestEncodePNGInvalid(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, nil, HDRMetadata{}); !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("nil image: %v", err)
	}
	img := randomConvertedImage(2, 2, 16, 4)
	img.Bits = 10
	if err := EncodePNG(&buf, img, HDRMetadata{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("10-bit image: %v", err)
	}
	img.Bits = 16
	img.Pix = img.Pix[:5]
	if err := EncodePNG(&buf, img, HDRMetadata{}); !errors.Is(err, ErrInvalidDimensions) {
		t.Fatalf("short image: %v", err)
	}
	img = randomConvertedImage(2, 2, 16, 4)
	err := EncodePNG(&buf, img, HDRMetadata{}, func(o *PNGOptions) {
		o.ICCProfile = []byte{1}
		o.ICCName = ""
	})
	if err == nil {
		t.Fatal("expected error for empty ICC name")
	}
}

func TestEncodePNGFile(t *testing.T) {
	img := randomConvertedImage(8, 8, 16, 5)
	path := filepath.Join(t.TempDir(), "out.png")
	if err := EncodePNGFile(path, img, HDRMetadata{MaxCLL: 100, MaxPALL: 50}); err != nil {
		t.Fatal(err)
	}
	src, err := DecodeFile(path)
	if src != nil || !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("PNG must not be accepted as source: %v", err)
	}
}

func TestReadPNGInfoCorruptedChunk(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, randomConvertedImage(2, 2, 16, 10), HDRMetadata{MaxCLL: 1000, MaxPALL: 200}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	i := bytes.Index(data, []byte("cLLi"))
	if i < 0 {
		t.Fatal("missing cLLi")
	}
	data[i+5] ^= 0x40 // MaxCLL payload byte

	if info, err := ReadPNGInfo(bytes.NewReader(data)); err == nil {
		t.Fatalf("corrupted cLLi accepted: %+v", info.Metadata)
	}
}

func TestReadPNGInfoInvalid(t *testing.T) {
	if _, err := ReadPNGInfo(bytes.NewReader([]byte("GIF89a....."))); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ReadPNGInfo(bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error")
	}
}
