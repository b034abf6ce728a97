package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/onein50million/counter-attack/internal/frame"
)

// ErrSnapshotCorrupt is returned when a snapshot's contents no longer match
// its recorded fingerprint.
var ErrSnapshotCorrupt = errors.New("state: snapshot fingerprint mismatch")

// Snapshot is a frozen copy of the world at a frame, plus its fingerprint.
type Snapshot struct {
	Frame       uint64 `json:"frame"`
	World       World  `json:"world"`
	Fingerprint uint64 `json:"fingerprint"`
}

// Capture freezes w as the state at the given frame.
func Capture(frameNo uint64, w World) Snapshot {
	cloned := w.Clone()
	return Snapshot{
		Frame:       frameNo,
		World:       cloned,
		Fingerprint: Fingerprint(cloned),
	}
}

// Restore returns a copy of the captured world after checking that it still
// hashes to the recorded fingerprint.
func (s Snapshot) Restore() (World, error) {
	if got := Fingerprint(s.World); got != s.Fingerprint {
		return World{}, fmt.Errorf("%w: frame %d recorded %016x, computed %016x", ErrSnapshotCorrupt, s.Frame, s.Fingerprint, got)
	}
	return s.World.Clone(), nil
}

// Fingerprint hashes the canonical encoding of w.
func Fingerprint(w World) uint64 {
	return xxhash.Sum64(AppendWorld(nil, w))
}

// AppendWorld appends the canonical little-endian encoding of w to dst.
// Fields are written in declaration order; optional values carry a presence
// byte; floats are encoded by bit pattern.
func AppendWorld(dst []byte, w World) []byte {
	for _, p := range w.Players {
		dst = appendPlayer(dst, p)
	}
	dst = appendOffset(dst, w.FinalClash.NextClash)
	return append(dst, byte(w.GameState))
}

func appendPlayer(dst []byte, p PlayerState) []byte {
	if p.CurrentAttack == nil {
		dst = append(dst, 0)
	} else {
		dst = append(dst, 1)
		dst = appendSeconds(dst, p.CurrentAttack.StartupTime)
		dst = appendSeconds(dst, p.CurrentAttack.BlockGrace)
		dst = appendSeconds(dst, p.CurrentAttack.RecoverTime)
	}
	dst = appendOffset(dst, p.AttackStart)
	dst = appendOffset(dst, p.AttackRecover)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(p.LastDefendResult))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(p.Stamina))
	dst = append(dst, p.FinalClashLives)
	return appendOffset(dst, p.FinalClashLastSwing)
}

func appendOffset(dst []byte, f frame.FrameOffset) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, f.Frame)
	return binary.LittleEndian.AppendUint64(dst, f.Offset)
}

func appendSeconds(dst []byte, s frame.Seconds) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(float64(s)))
}
