package hdrpq

import "errors"

var (
	// ErrUnsupportedFormat is returned for pixel layouts other than float32/float16 RGB(A).
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrInvalidDimensions is returned when buffer geometry is inconsistent.
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrAllocation is returned when output or worker state cannot be allocated.
	ErrAllocation = errors.New("allocation failed")
	// ErrWorkerFailed is returned when a row worker terminates abnormally.
	ErrWorkerFailed = errors.New("conversion worker failed")
	// ErrInvalidOptions is returned for out of range configuration.
	ErrInvalidOptions = errors.New("invalid options")
)
