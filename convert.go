package hdrpq

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// ConvertOptions controls conversion.
type ConvertOptions struct {
	// Workers is the number of row workers, 0 means runtime.GOMAXPROCS(0).
	Workers int
	// MaxWorkers caps Workers, 0 means DefaultMaxWorkers.
	MaxWorkers int
	// StorageBits is the output sample bit depth, 8 or 16.
	StorageBits int
	// QuantizationBits is the precision of output samples, in [1, StorageBits].
	QuantizationBits int
	// Policy selects MaxCLL estimation, default is Percentile{DefaultPercentile}.
	Policy MaxCLLPolicy

	beforeRows func(r RowRange) // invoked by each worker, used to inject failures in tests
}

// DefaultConvertOptions returns the reference configuration.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		MaxWorkers:       DefaultMaxWorkers,
		StorageBits:      DefaultStorageBits,
		QuantizationBits: DefaultQuantizationBits,
		Policy:           Percentile{Value: DefaultPercentile},
	}
}

func (o *ConvertOptions) validate() error {
	if o.StorageBits != 8 && o.StorageBits != 16 {
		return fmt.Errorf("%w: storage bit depth must be 8 or 16, got %d", ErrInvalidOptions, o.StorageBits)
	}
	if o.Workers < 0 || o.MaxWorkers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalidOptions)
	}
	if p, ok := o.Policy.(*Percentile); ok && p == nil {
		return fmt.Errorf("%w: nil percentile policy", ErrInvalidOptions)
	}
	// Pointer policies share value validation.
	if v, ok := o.Policy.(interface{ validate() error }); ok {
		return v.validate()
	}
	return nil
}

func (o *ConvertOptions) workerCount(height int) int {
	n := o.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	limit := o.MaxWorkers
	if limit <= 0 {
		limit = DefaultMaxWorkers
	}
	if n > limit {
		n = limit
	}
	if n > height {
		n = height
	}
	if n < 1 {
		n = 1
	}
	return n
}

// partitionRows splits [0, height) into n contiguous ranges of height/n rows,
// the last range takes the remainder. If height < n, n is reduced to height.
func partitionRows(height, n int) []RowRange {
	if height <= 0 {
		return nil
	}
	if n > height {
		n = height
	}
	if n < 1 {
		n = 1
	}
	chunk := height / n
	ranges := make([]RowRange, n)
	for i := range ranges {
		ranges[i] = RowRange{Start: i * chunk, Stop: (i + 1) * chunk}
	}
	ranges[n-1].Stop = height
	return ranges
}

// Convert encodes src into BT.2100 PQ samples and computes HDR metadata.
//
// Rows are converted in parallel, one goroutine per row range. If any worker fails,
// no result is returned.
func Convert(src *PixelBuffer, opts ...func(o *ConvertOptions)) (*Result, error) {
	opt := DefaultConvertOptions()
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	if opt.Policy == nil {
		opt.Policy = Percentile{Value: DefaultPercentile}
	}
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	quant, err := NewQuantizer(opt.QuantizationBits, opt.StorageBits)
	if err != nil {
		return nil, err
	}

	pixels := uint64(src.Width) * uint64(src.Height)
	img, err := newConvertedImage(src.Width, src.Height, opt.StorageBits)
	if err != nil {
		return nil, err
	}

	ranges := partitionRows(src.Height, opt.workerCount(src.Height))
	logger := Logger()
	logger.Debug("converting pixels to BT.2100 PQ",
		"width", src.Width, "height", src.Height, "format", src.Format.String(), "workers", len(ranges))

	workers := make([]*rowWorker, len(ranges))
	for i, r := range ranges {
		rowSamples := src.Width * 3
		workers[i] = &rowWorker{
			rows:  r,
			src:   src,
			dst:   img.Pix[r.Start*rowSamples : r.Stop*rowSamples],
			quant: quant,
			stats: newStats(opt.Policy.NeedsHistogram()),

			beforeRows: opt.beforeRows,
		}
	}

	errs := make([]error, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *rowWorker) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%w: rows [%d, %d): %v", ErrWorkerFailed, w.rows.Start, w.rows.Stop, r)
				}
			}()
			w.run()
		}(i, w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			logger.Error("conversion aborted", "error", err)
			return nil, err
		}
	}

	total := newStats(opt.Policy.NeedsHistogram())
	for _, w := range workers {
		total.merge(w.stats)
	}

	meta := EstimateMetadata(total, pixels, opt.Policy)
	logger.Info("computed HDR metadata",
		slog.Int("maxCLL", int(meta.MaxCLL)), slog.Int("maxPALL", int(meta.MaxPALL)))

	return &Result{
		Image:    img,
		Metadata: meta,
		Stats:    *total,
		Workers:  len(workers),
	}, nil
}
