package rollback

import (
	"encoding/binary"
	"fmt"

	"github.com/onein50million/counter-attack/internal/frame"
)

// InputSize is the encoded size of one Input on the wire.
const InputSize = 16

// Input is the per-player, per-frame record exchanged between peers. The
// layout is fixed: Attacking.Frame then Attacking.Offset, little-endian, no
// padding.
type Input struct {
	// Attacking is the instant the player started a swing, or frame.Invalid()
	// when the player did not swing this frame.
	Attacking frame.FrameOffset
}

// BlankInput is the input of a player who did nothing.
func BlankInput() Input {
	return Input{Attacking: frame.Invalid()}
}

// AttackAt builds an input that swings at t.
func AttackAt(t frame.FrameOffset) Input {
	return Input{Attacking: t}
}

// Equal compares inputs byte for byte.
func (in Input) Equal(other Input) bool {
	return in.Attacking == other.Attacking
}

// AppendBinary appends the wire encoding of in to dst.
func (in Input) AppendBinary(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, in.Attacking.Frame)
	return binary.LittleEndian.AppendUint64(dst, in.Attacking.Offset)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (in Input) MarshalBinary() ([]byte, error) {
	return in.AppendBinary(make([]byte, 0, InputSize)), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (in *Input) UnmarshalBinary(data []byte) error {
	if len(data) != InputSize {
		return fmt.Errorf("%w: input is %d bytes, want %d", ErrMalformedPacket, len(data), InputSize)
	}
	in.Attacking.Frame = binary.LittleEndian.Uint64(data[0:8])
	in.Attacking.Offset = binary.LittleEndian.Uint64(data[8:16])
	return nil
}
