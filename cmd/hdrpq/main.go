package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vearutop/hdrpq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "convert":
		if err := runConvert(os.Args[2:]); err != nil {
			fail(err)
		}
	case "info":
		if err := runInfo(os.Args[2:], os.Stdout); err != nil {
			fail(err)
		}
	case "detect":
		if err := runDetect(os.Args[2:], os.Stdout); err != nil {
			fail(err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: hdrpq <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  convert -in input.exr [-out output.png] [-workers N] [-true-peak] [-percentile 0.9999] [-icc profile.icc] [-preview p.png] [-v]")
	fmt.Fprintln(os.Stderr, "  info    -in input.exr|output.png [-workers N] [-true-peak] [-percentile 0.9999]")
	fmt.Fprintln(os.Stderr, "  detect  -in input")
}

type convertFlags struct {
	workers    int
	maxWorkers int
	truePeak   bool
	percentile float64
	qbits      int
	bits       int
}

func (c *convertFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&c.workers, "workers", 0, "number of row workers (default: number of CPUs)")
	fs.IntVar(&c.maxWorkers, "max-workers", hdrpq.DefaultMaxWorkers, "upper bound of row workers")
	fs.BoolVar(&c.truePeak, "true-peak", false, "report true peak as MaxCLL instead of percentile")
	fs.Float64Var(&c.percentile, "percentile", hdrpq.DefaultPercentile, "MaxCLL percentile")
	fs.IntVar(&c.qbits, "qbits", hdrpq.DefaultQuantizationBits, "quantization bit depth")
	fs.IntVar(&c.bits, "bits", hdrpq.DefaultStorageBits, "output bit depth, 8 or 16")
}

func (c *convertFlags) apply(o *hdrpq.ConvertOptions) {
	o.Workers = c.workers
	o.MaxWorkers = c.maxWorkers
	o.QuantizationBits = c.qbits
	o.StorageBits = c.bits
	if c.truePeak {
		o.Policy = hdrpq.TruePeak{}
	} else {
		o.Policy = hdrpq.Percentile{Value: c.percentile}
	}
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	inPath := fs.String("in", "", "input EXR or TIFF, optionally zstd compressed")
	outPath := fs.String("out", "output.png", "output PNG")
	iccPath := fs.String("icc", "", "ICC profile to embed")
	previewOut := fs.String("preview", "", "write PNG thumbnail")
	previewSize := fs.Uint("preview-size", hdrpq.DefaultPreviewSize, "thumbnail bounding box")
	verbose := fs.Bool("v", false, "verbose logging")
	var cf convertFlags
	cf.register(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	setupLogger(*verbose)

	var icc []byte
	if *iccPath != "" {
		var err error
		icc, err = os.ReadFile(filepath.Clean(*iccPath))
		if err != nil {
			return err
		}
	}

	_, err := hdrpq.ConvertFile(*inPath, *outPath, func(o *hdrpq.FileOptions) {
		o.Convert = append(o.Convert, cf.apply)
		o.PreviewOut = *previewOut
		o.PreviewSize = *previewSize
		if len(icc) > 0 {
			o.PNG = append(o.PNG, func(po *hdrpq.PNGOptions) {
				po.ICCProfile = icc
				po.ICCName = filepath.Base(*iccPath)
			})
		}
	})
	return err
}

func runInfo(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	inPath := fs.String("in", "", "input EXR, TIFF or PQ PNG")
	verbose := fs.Bool("v", false, "verbose logging")
	var cf convertFlags
	cf.register(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}
	setupLogger(*verbose)

	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)

	if info, err := hdrpq.ReadPNGInfo(bytes.NewReader(data)); err == nil {
		fmt.Fprintf(out, "png %dx%d, %d-bit\n", info.Width, info.Height, info.BitDepth)
		if info.CICP != nil {
			p.Fprintf(out, "cICP: primaries %d, transfer %d, matrix %d, full range %v\n",
				info.CICP.ColorPrimaries, info.CICP.TransferCharacteristics, info.CICP.MatrixCoefficients, info.CICP.FullRange)
		}
		if info.Metadata != nil {
			p.Fprintf(out, "MaxCLL: %d nits, MaxPALL: %d nits\n", info.Metadata.MaxCLL, info.Metadata.MaxPALL)
		}
		return nil
	}

	src, err := hdrpq.Decode(data)
	if err != nil {
		return err
	}
	res, err := hdrpq.Convert(src, cf.apply)
	if err != nil {
		return err
	}
	p.Fprintf(out, "%s %s, %d pixels, %s components\n",
		hdrpq.DetectFormat(data), fmt.Sprintf("%dx%d", src.Width, src.Height), res.Stats.Pixels, src.Format)
	p.Fprintf(out, "workers: %d\n", res.Workers)
	p.Fprintf(out, "MaxCLL: %d nits, MaxPALL: %d nits\n", res.Metadata.MaxCLL, res.Metadata.MaxPALL)
	return nil
}

func runDetect(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	inPath := fs.String("in", "", "input file")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}
	f, err := os.Open(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]

	if format := hdrpq.DetectFormat(head); format != hdrpq.SourceUnknown {
		fmt.Fprintln(out, format)
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	info, err := hdrpq.ReadPNGInfo(f)
	if err != nil {
		fmt.Fprintln(out, "unknown")
		return nil
	}
	if info.IsPQ() {
		fmt.Fprintln(out, "pq png")
		return nil
	}
	fmt.Fprintln(out, "png")
	return nil
}

func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hdrpq.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
