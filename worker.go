package hdrpq

// Stats accumulates brightness statistics of converted pixels.
//
// Peak and Sum are expressed in normalized PQ linear units, where 1.0 is 10000 nits.
type Stats struct {
	Peak      float32  // maximum of per-pixel max component
	Sum       float64  // sum of per-pixel max component
	Pixels    uint64   // number of accumulated pixels
	Histogram []uint64 // pixel count per rounded nits value, nil if not tracked
}

func newStats(histogram bool) *Stats {
	s := &Stats{}
	if histogram {
		s.Histogram = make([]uint64, NitsBuckets)
	}
	return s
}

// add records a pixel with max component v in [0, 1].
func (s *Stats) add(v float32) {
	if v > s.Peak {
		s.Peak = v
	}
	s.Sum += float64(v)
	s.Pixels++
	if s.Histogram != nil {
		s.Histogram[nitsIndex(v)]++
	}
}

// merge folds o into s.
func (s *Stats) merge(o *Stats) {
	if o.Peak > s.Peak {
		s.Peak = o.Peak
	}
	s.Sum += o.Sum
	s.Pixels += o.Pixels
	if s.Histogram != nil && o.Histogram != nil {
		for i, c := range o.Histogram {
			s.Histogram[i] += c
		}
	}
}

// nitsIndex returns rounded nits of normalized value v in [0, 1].
func nitsIndex(v float32) int {
	return int(roundf(v * pqMaxNits))
}

// rowWorker converts a range of rows, it owns its stats and its slice of output rows.
type rowWorker struct {
	rows  RowRange
	src   *PixelBuffer
	dst   []uint16 // output rows of the range, 3 samples per pixel
	quant *Quantizer
	stats *Stats

	beforeRows func(r RowRange) // optional, called before conversion starts
}

func (w *rowWorker) run() {
	if w.beforeRows != nil {
		w.beforeRows(w.rows)
	}

	var (
		src   = w.src
		width = src.Width
		comps = src.Components
		out   = w.dst
		o     = 0
	)

	read := readRGBFloat32
	if src.Format == FormatFloat16 {
		read = readRGBFloat16
	}

	for y := w.rows.Start; y < w.rows.Stop; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < width; x++ {
			c := toBT2100(read(row, x, comps))
			w.stats.add(max3(c.r, c.g, c.b))

			out[o] = w.quant.Encode(c.r)
			out[o+1] = w.quant.Encode(c.g)
			out[o+2] = w.quant.Encode(c.b)
			o += 3
		}
	}
}
