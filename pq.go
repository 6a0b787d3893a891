package hdrpq

import (
	"fmt"
	"math"
)

// SMPTE ST 2084 constants.
const (
	pqM1 = 1305.0 / 8192.0
	pqM2 = 2523.0 / 32.0
	pqC1 = 107.0 / 128.0
	pqC2 = 2413.0 / 128.0
	pqC3 = 2392.0 / 128.0
)

func roundf(v float32) float32 { return float32(math.Round(float64(v))) }

// pqInvEOTF maps normalized linear light y in [0, 1] (1.0 = 10000 nits) to a PQ signal in [0, 1].
// Evaluation is done in float64, single precision intermediates are not monotonic near 1.
// Quantized codes may therefore differ by one from a float32 evaluation of the same formula.
func pqInvEOTF(y float32) float32 {
	ym1 := math.Pow(float64(y), pqM1)
	return float32(math.Pow((pqC1+pqC2*ym1)/(1+pqC3*ym1), pqM2))
}

// Quantizer encodes PQ signal into samples that carry quantBits of precision
// stored at storageBits.
type Quantizer struct {
	quantBits   int
	storageBits int
	quantMax    float32
	expand      []uint16 // quantized code -> storage sample
}

// NewQuantizer creates a two-stage quantizer, quantBits must be in [1, storageBits]
// and storageBits in [1, 16].
func NewQuantizer(quantBits, storageBits int) (*Quantizer, error) {
	if storageBits < 1 || storageBits > 16 {
		return nil, fmt.Errorf("%w: storage bit depth %d", ErrInvalidOptions, storageBits)
	}
	if quantBits < 1 || quantBits > storageBits {
		return nil, fmt.Errorf("%w: quantization bit depth %d", ErrInvalidOptions, quantBits)
	}

	q := &Quantizer{
		quantBits:   quantBits,
		storageBits: storageBits,
		quantMax:    float32(uint32(1)<<quantBits - 1),
	}
	storageMax := float32(uint32(1)<<storageBits - 1)

	q.expand = make([]uint16, 1<<quantBits)
	for code := range q.expand {
		q.expand[code] = uint16(roundf(float32(code) / q.quantMax * storageMax))
	}

	return q, nil
}

// QuantizationBits returns the precision of encoded samples.
func (q *Quantizer) QuantizationBits() int { return q.quantBits }

// StorageBits returns the bit depth of encoded samples.
func (q *Quantizer) StorageBits() int { return q.storageBits }

// Quantize rounds a PQ signal in [0, 1] to quantBits.
func (q *Quantizer) Quantize(signal float32) uint16 {
	v := roundf(saturate(signal) * q.quantMax)
	return uint16(v)
}

// Expand re-expands a quantized code to storageBits.
func (q *Quantizer) Expand(code uint16) uint16 {
	return q.expand[code]
}

// Encode applies PQ inverse EOTF to clamped linear value y and quantizes it.
func (q *Quantizer) Encode(y float32) uint16 {
	return q.expand[q.Quantize(pqInvEOTF(y))]
}
