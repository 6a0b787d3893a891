package hdrpq

const (
	pqMaxNits = 10000.0
	// scRGB 1.0 corresponds to 80 nits.
	scRGBWhiteNits = 80.0
)

const (
	// DefaultStorageBits is the bit depth of the output samples.
	DefaultStorageBits = 16
	// DefaultQuantizationBits is the precision actually carried by output samples.
	DefaultQuantizationBits = 10
	// DefaultPercentile keeps the top 0.01% of pixels out of MaxCLL.
	DefaultPercentile = 0.9999
	// DefaultMaxWorkers caps the number of row workers.
	DefaultMaxWorkers = 64
	// MaxPixels limits the size of images accepted for conversion.
	MaxPixels = 1 << 31
)

// NitsBuckets is the size of the luminance histogram, one bucket per nit in [0, 10000].
const NitsBuckets = int(pqMaxNits) + 1
