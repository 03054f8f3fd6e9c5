// Package stats provides a single-pass accumulator for min/max/mean/variance with a bounded sample for the median.
//
// Mean and variance use Welford's online update, so they do not depend on the order of observations.
// The median is computed over a reservoir (Algorithm R) of at most SampleSize values drawn with a fixed-seed
// generator: it is exact while Count <= SampleSize, and beyond that it is deterministic for a given update order
// but not order independent.
package stats

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
)

// DefaultSampleSize comfortably exceeds the transaction count of a single collection window.
const DefaultSampleSize = 100_000

// fixed so that two accumulators fed the same sequence report the same median
const reservoirSeed = 0x5eed

var ErrEmptyAccumulator = errors.New("statistics requested from an empty accumulator")

type (
	Streaming struct {
		count    int64
		rejected int64
		mean     float64
		m2       float64
		min      float64
		max      float64

		sampleSize int
		sample     []float64
		rng        *rand.Rand
	}

	// Summary is an immutable snapshot of a Streaming accumulator.
	Summary struct {
		Count    int64   `json:"count"`
		Min      float64 `json:"min"`
		Max      float64 `json:"max"`
		Mean     float64 `json:"mean"`
		Median   float64 `json:"median"`
		Variance float64 `json:"variance"`
	}
)

// NewStreaming returns an empty accumulator whose median sample holds at most sampleSize values.
// A non-positive sampleSize selects DefaultSampleSize.
func NewStreaming(sampleSize int) *Streaming {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Streaming{
		sampleSize: sampleSize,
		rng:        rand.New(rand.NewPCG(reservoirSeed, reservoirSeed)),
	}
}

// Update folds one observation into the accumulator. NaN and ±Inf are dropped and counted in Rejected.
func (s *Streaming) Update(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		s.rejected++
		return
	}

	s.count++
	if s.count == 1 {
		s.min, s.max = value, value
	} else {
		s.min = math.Min(s.min, value)
		s.max = math.Max(s.max, value)
	}

	delta := value - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (value - s.mean)

	if len(s.sample) < s.sampleSize {
		s.sample = append(s.sample, value)
		return
	}
	if j := s.rng.Int64N(s.count); j < int64(s.sampleSize) {
		s.sample[j] = value
	}
}

// Count returns the number of accepted observations.
func (s *Streaming) Count() int64 {
	return s.count
}

// Rejected returns the number of non-finite observations that were dropped.
func (s *Streaming) Rejected() int64 {
	return s.rejected
}

// Mean returns the running mean, or ErrEmptyAccumulator.
func (s *Streaming) Mean() (float64, error) {
	if s.count == 0 {
		return 0, ErrEmptyAccumulator
	}
	return s.mean, nil
}

// Snapshot returns min, max, mean, median and population variance of everything seen so far.
func (s *Streaming) Snapshot() (Summary, error) {
	if s.count == 0 {
		return Summary{}, ErrEmptyAccumulator
	}
	return Summary{
		Count:    s.count,
		Min:      s.min,
		Max:      s.max,
		Mean:     s.mean,
		Median:   median(s.sample),
		Variance: s.m2 / float64(s.count),
	}, nil
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
