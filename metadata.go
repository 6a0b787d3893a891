package hdrpq

import (
	"fmt"
	"math"
)

// MaxCLLPolicy derives MaxCLL from merged conversion statistics.
type MaxCLLPolicy interface {
	// NeedsHistogram tells whether workers must track the nits histogram.
	NeedsHistogram() bool
	// MaxCLL returns content light level in nits.
	MaxCLL(s *Stats, pixels uint64) uint16
}

// TruePeak reports the brightest pixel as MaxCLL.
type TruePeak struct{}

// NeedsHistogram implements MaxCLLPolicy.
func (TruePeak) NeedsHistogram() bool { return false }

// MaxCLL implements MaxCLLPolicy.
func (TruePeak) MaxCLL(s *Stats, _ uint64) uint16 {
	return uint16(nitsIndex(s.Peak))
}

// Percentile reports the largest nits value reached by at least (1-Value) of pixels,
// so that isolated highlights above the percentile do not dominate MaxCLL.
type Percentile struct {
	Value float64
}

// NeedsHistogram implements MaxCLLPolicy.
func (Percentile) NeedsHistogram() bool { return true }

// CountTarget returns the number of brightest pixels that must be at or above MaxCLL.
func (p Percentile) CountTarget(pixels uint64) uint64 {
	return uint64(math.Round((1 - p.Value) * float64(pixels)))
}

// MaxCLL implements MaxCLLPolicy.
func (p Percentile) MaxCLL(s *Stats, pixels uint64) uint16 {
	peak := nitsIndex(s.Peak)

	target := p.CountTarget(pixels)
	if target == 0 || s.Histogram == nil {
		return uint16(peak)
	}

	var count uint64
	v := peak
	for ; v > 0; v-- {
		count += s.Histogram[v]
		if count >= target {
			break
		}
	}

	return uint16(v)
}

func (p Percentile) validate() error {
	if !(p.Value >= 0 && p.Value <= 1) {
		return fmt.Errorf("%w: percentile %v is out of [0, 1]", ErrInvalidOptions, p.Value)
	}
	return nil
}

// EstimateMetadata computes MaxCLL with policy and MaxPALL as the average of per-pixel max component.
func EstimateMetadata(s *Stats, pixels uint64, policy MaxCLLPolicy) HDRMetadata {
	if pixels == 0 {
		return HDRMetadata{}
	}
	if policy == nil {
		policy = Percentile{Value: DefaultPercentile}
	}

	return HDRMetadata{
		MaxCLL:  policy.MaxCLL(s, pixels),
		MaxPALL: uint16(math.Round(pqMaxNits * (s.Sum / float64(pixels)))),
	}
}
