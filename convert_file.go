package hdrpq

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileOptions controls ConvertFile.
type FileOptions struct {
	Convert     []func(o *ConvertOptions)
	PNG         []func(o *PNGOptions)
	PreviewOut  string // optional path of PNG thumbnail
	PreviewSize uint   // bounding box of thumbnail, default DefaultPreviewSize
	OnResult    func(res *Result)
}

// ConvertFile decodes an EXR or TIFF file, converts it to BT.2100 PQ and writes a PNG
// with cICP and cLLi metadata to outPath.
func ConvertFile(inPath, outPath string, opts ...func(o *FileOptions)) (*Result, error) {
	opt := FileOptions{}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	logger := Logger()
	start := time.Now()

	src, err := DecodeFile(inPath)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", inPath, err)
	}
	logger.Debug("decoded source", "path", inPath, "width", src.Width, "height", src.Height,
		"format", src.Format.String(), "elapsed", time.Since(start))

	res, err := Convert(src, opt.Convert...)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}

	if opt.OnResult != nil {
		opt.OnResult(res)
	}

	var buf bytes.Buffer
	if err := EncodePNG(&buf, res.Image, res.Metadata, opt.PNG...); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(outPath), buf.Bytes(), 0o644); err != nil {
		return nil, err
	}
	logger.Info("encoded PNG", "path", outPath, "bytes", buf.Len(), "elapsed", time.Since(start))

	if opt.PreviewOut != "" {
		if err := WritePreview(opt.PreviewOut, res.Image, opt.PreviewSize); err != nil {
			return nil, fmt.Errorf("write preview: %w", err)
		}
	}

	return res, nil
}
