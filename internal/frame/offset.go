package frame

import (
	"math"
	"math/bits"
	"time"
)

// Seconds is a signed span of real time.
type Seconds float64

// Duration converts the span into a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// DefaultFrameDuration is the length of one simulation frame.
const DefaultFrameDuration Seconds = 0.1

// InvalidFrame marks an offset that carries no input.
const InvalidFrame uint64 = math.MaxUint64

// fractionScale is 2^64, the denominator of Offset.
const fractionScale = 18446744073709551616.0

// FrameOffset is a simulation-time coordinate: a frame index plus the
// fraction Offset/2^64 of the way into that frame.
type FrameOffset struct {
	Frame  uint64 `json:"frame"`
	Offset uint64 `json:"offset"`
}

// Invalid returns the "no input" sentinel.
func Invalid() FrameOffset {
	return FrameOffset{Frame: InvalidFrame}
}

// At returns the start of the provided frame.
func At(frame uint64) FrameOffset {
	return FrameOffset{Frame: frame}
}

// IsValid reports whether f is a real coordinate rather than the sentinel.
func (f FrameOffset) IsValid() bool {
	return f.Frame != InvalidFrame
}

// Compare orders offsets by (Frame, Offset).
func (f FrameOffset) Compare(other FrameOffset) int {
	switch {
	case f.Frame < other.Frame:
		return -1
	case f.Frame > other.Frame:
		return 1
	case f.Offset < other.Offset:
		return -1
	case f.Offset > other.Offset:
		return 1
	default:
		return 0
	}
}

// Before reports whether f sorts strictly before other.
func (f FrameOffset) Before(other FrameOffset) bool {
	return f.Compare(other) < 0
}

// After reports whether f sorts strictly after other.
func (f FrameOffset) After(other FrameOffset) bool {
	return f.Compare(other) > 0
}

// Fraction returns the sub-frame offset as a float in [0,1).
func (f FrameOffset) Fraction() float64 {
	return float64(f.Offset) / fractionScale
}

// Timebase converts between real seconds and frame coordinates.
type Timebase struct {
	FrameDuration Seconds
}

// NewTimebase returns a timebase for the given frame duration, falling back to
// DefaultFrameDuration for non-positive values.
func NewTimebase(frameDuration Seconds) Timebase {
	if frameDuration <= 0 || math.IsNaN(float64(frameDuration)) || math.IsInf(float64(frameDuration), 0) {
		frameDuration = DefaultFrameDuration
	}
	return Timebase{FrameDuration: frameDuration}
}

// Duration reports one frame as a time.Duration.
func (tb Timebase) Duration() time.Duration {
	return tb.FrameDuration.Duration()
}

// Rate reports frames per second.
func (tb Timebase) Rate() float64 {
	return 1 / float64(tb.frameDuration())
}

// Add shifts f by s seconds. The delta is converted to a 128-bit fixed-point
// frame count once, then added with integer carry so that
// Add(Add(f, s), -s) == f for every s.
func (tb Timebase) Add(f FrameOffset, s Seconds) FrameOffset {
	whole, frac := tb.split(s)
	offset, carry := bits.Add64(f.Offset, frac, 0)
	return FrameOffset{
		Frame:  f.Frame + uint64(whole) + carry,
		Offset: offset,
	}
}

// Sub shifts f back by s seconds.
func (tb Timebase) Sub(f FrameOffset, s Seconds) FrameOffset {
	return tb.Add(f, -s)
}

// Elapsed returns b-a in seconds. A positive result means b sorts after a.
func (tb Timebase) Elapsed(a, b FrameOffset) Seconds {
	offset, borrow := bits.Sub64(b.Offset, a.Offset, 0)
	whole := int64(b.Frame - a.Frame - borrow)
	return Seconds(frames(whole, offset)) * tb.frameDuration()
}

func (tb Timebase) frameDuration() Seconds {
	if tb.FrameDuration <= 0 {
		return DefaultFrameDuration
	}
	return tb.FrameDuration
}

// split converts seconds into whole frames plus a 2^-64 fraction. Negative
// spans are produced by exact two's complement negation of the positive
// split, which keeps Add symmetric.
func (tb Timebase) split(s Seconds) (int64, uint64) {
	count := float64(s) / float64(tb.frameDuration())
	if math.IsNaN(count) || count == 0 {
		return 0, 0
	}
	negative := count < 0
	magnitude := math.Abs(count)
	if magnitude >= math.MaxInt64 {
		magnitude = math.MaxInt64 / 2
	}
	whole := math.Floor(magnitude)
	scaled := (magnitude - whole) * fractionScale
	var frac uint64
	if scaled >= fractionScale {
		whole++
	} else {
		frac = uint64(scaled)
	}
	w := int64(whole)
	if !negative {
		return w, frac
	}
	if frac == 0 {
		return -w, 0
	}
	return -w - 1, -frac
}

// frames turns a signed 128-bit fixed-point frame count into a float while
// preserving its sign, even when the fraction rounds up to a whole frame.
func frames(whole int64, frac uint64) float64 {
	if whole >= 0 {
		return float64(whole) + float64(frac)/fractionScale
	}
	magnitude := uint64(-whole)
	if frac != 0 {
		magnitude--
		frac = -frac
	}
	return -(float64(magnitude) + float64(frac)/fractionScale)
}
