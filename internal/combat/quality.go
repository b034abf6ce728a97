package combat

import (
	"fmt"
	"math"

	"github.com/onein50million/counter-attack/internal/frame"
)

// Tier is the discrete grade of a block's timing.
type Tier uint8

const (
	TierInhuman Tier = iota
	TierPerfect
	TierExcellent
	TierGood
	TierDecent
	TierSloppy
)

// Label is the text shown to the blocking player.
func (t Tier) Label() string {
	switch t {
	case TierInhuman:
		return "INHUMAN BLOCK"
	case TierPerfect:
		return "Perfect Block"
	case TierExcellent:
		return "Excellent Block"
	case TierGood:
		return "Good Block"
	case TierDecent:
		return "Decent Block"
	case TierSloppy:
		return "Sloppy Block"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

func (t Tier) String() string {
	return t.Label()
}

// Quality converts a defend timing error into a score in [0,1], where 1 is
// frame-perfect.
func Quality(delta frame.Seconds) float64 {
	err := math.Abs(float64(delta))
	if err > 1 {
		err = 1
	}
	return 1 - err
}

// Classify grades a quality score.
func Classify(quality float64) Tier {
	switch {
	case quality == 1:
		return TierInhuman
	case quality > 0.999:
		return TierPerfect
	case quality > 0.99:
		return TierExcellent
	case quality > 0.9:
		return TierGood
	case quality > 0.8:
		return TierDecent
	default:
		return TierSloppy
	}
}

// BlockLoss is the stamina a block of the given quality costs the blocker.
func BlockLoss(base, quality float64) float64 {
	// The conversion keeps the compiler from fusing this into an FMA, whose
	// rounding differs across architectures.
	scaled := float64(quality * 0.8)
	return base * (1 - scaled)
}

// ExposureLoss is the stamina an unanswered attack costs its target.
func ExposureLoss(base float64) float64 {
	return base * 1.5
}

// PerfectMix splits the block cue between the plain and perfect-block
// sounds. Only near-perfect blocks get a noticeable share.
func PerfectMix(quality float64) float64 {
	return math.Pow(quality, 16)
}
