// Package pitch decodes CREPE activation vectors into frequency estimates.
//
// The model emits 360 sigmoid activations. Bin i stands for a pitch whose
// value in cents (relative to 10 Hz) is
//
//	center[i] = CentMin + (CentMax-CentMin) * i/359
//
// covering roughly C1 (32.7 Hz) to B6 (1975.5 Hz) in 20-cent steps.
//
// [Decode] takes the activation-weighted mean of all 360 centers (a global
// soft-argmax) and converts it back to Hz. The mean is not restricted to the
// neighbourhood of the peak, so octave-ambiguous activations pull the
// estimate between the two modes.
package pitch

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Bins is the length of an activation vector.
const Bins = 360

// Frequency bounds of the bin grid, in Hz.
const (
	MinHz = 32.7
	MaxHz = 1975.5
)

// ErrDecode reports an activation vector that has no defined centroid.
var ErrDecode = errors.New("pitch: decode failed")

var (
	// CentMin and CentMax are the first and last bin centers.
	CentMin = Cents(MinHz)
	CentMax = Cents(MaxHz)

	centers = func() [Bins]float64 {
		var c [Bins]float64
		for i := range c {
			c[i] = CentMin + (CentMax-CentMin)*float64(i)/float64(Bins-1)
		}
		return c
	}()
)

// Center returns the center of bin i in cents.
func Center(i int) float64 {
	return centers[i]
}

// Estimate is one decoded observation.
type Estimate struct {
	Hz         float64
	Cents      float64
	Confidence float64
}

// Decode converts an activation vector to a frequency estimate.
//
// Confidence is max(bins), exactly. The frequency is
// 10 * 2^(c/1200) where c is the activation-weighted mean bin center.
// Vectors of the wrong length, with a non-positive sum, or with non-finite
// values return an error wrapping [ErrDecode].
func Decode(bins []float32) (Estimate, error) {
	if len(bins) != Bins {
		return Estimate{}, fmt.Errorf("%w: got %d bins, want %d", ErrDecode, len(bins), Bins)
	}

	w := make([]float64, Bins)
	peak := bins[0]
	for i, b := range bins {
		if b > peak {
			peak = b
		}
		w[i] = float64(b)
	}

	sum := vecmath.Sum(w)
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Estimate{}, fmt.Errorf("%w: non-finite activation", ErrDecode)
	}
	if sum <= 0 {
		return Estimate{}, fmt.Errorf("%w: zero activation mass", ErrDecode)
	}

	cent := vecmath.DotProduct(w, centers[:]) / sum
	return Estimate{
		Hz:         Hz(cent),
		Cents:      cent,
		Confidence: float64(peak),
	}, nil
}

// Hz converts cents relative to 10 Hz into a frequency.
func Hz(cents float64) float64 {
	return 10 * math.Exp2(cents/1200)
}

// Cents converts a frequency into cents relative to 10 Hz.
func Cents(hz float64) float64 {
	return 1200 * math.Log2(hz/10)
}
