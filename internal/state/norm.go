package state

import "math"

// Unorm is an unsigned normalized fixed-point value: Unorm(x) represents
// x / math.MaxUint64, covering [0, 1].
type Unorm uint64

// Inorm is a signed normalized fixed-point value: Inorm(x) represents
// x / math.MaxInt64, covering [-1, 1].
type Inorm int64

const (
	// UnormOne is the unsigned representation of 1.0.
	UnormOne Unorm = math.MaxUint64
	// InormOne is the signed representation of 1.0.
	InormOne Inorm = math.MaxInt64
)

// UnormFromFloat converts v, clamped into [0,1], to fixed point.
func UnormFromFloat(v float64) Unorm {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 1:
		return UnormOne
	}
	scaled := v * float64(math.MaxUint64)
	// float64(MaxUint64) rounds up to 2^64, which does not fit.
	if scaled >= float64(math.MaxUint64) {
		return UnormOne
	}
	return Unorm(scaled)
}

// Float returns the value as a float in [0,1].
func (u Unorm) Float() float64 {
	return float64(u) / float64(math.MaxUint64)
}

// SaturatingSub subtracts d and floors at zero.
func (u Unorm) SaturatingSub(d Unorm) Unorm {
	if d >= u {
		return 0
	}
	return u - d
}

// InormFromFloat converts v, clamped into [-1,1], to fixed point.
func InormFromFloat(v float64) Inorm {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return InormOne
	case v <= -1:
		return -InormOne
	}
	scaled := v * float64(math.MaxInt64)
	if scaled >= float64(math.MaxInt64) {
		return InormOne
	}
	if scaled <= -float64(math.MaxInt64) {
		return -InormOne
	}
	return Inorm(scaled)
}

// Float returns the value as a float in [-1,1].
func (i Inorm) Float() float64 {
	return float64(i) / float64(math.MaxInt64)
}
