package rollback

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	packetMagic uint16 = 0xCA7A
	headerSize         = 3
	// maxInputsPerPacket bounds the resend window carried by one packet.
	maxInputsPerPacket = 64
	// noFrame marks an absent frame number on the wire.
	noFrame uint64 = math.MaxUint64
)

type packetKind uint8

const (
	kindSyncRequest packetKind = iota + 1
	kindSyncReply
	kindInput
	kindInputAck
	kindQualityReport
	kindQualityReply
	kindKeepAlive
	kindChecksum
)

func (k packetKind) String() string {
	switch k {
	case kindSyncRequest:
		return "sync_request"
	case kindSyncReply:
		return "sync_reply"
	case kindInput:
		return "input"
	case kindInputAck:
		return "input_ack"
	case kindQualityReport:
		return "quality_report"
	case kindQualityReply:
		return "quality_reply"
	case kindKeepAlive:
		return "keep_alive"
	case kindChecksum:
		return "checksum"
	default:
		return fmt.Sprintf("packet(%d)", uint8(k))
	}
}

// packet is the decoded form of every message exchanged between peers. Only
// the fields relevant to kind are encoded.
type packet struct {
	kind packetKind

	// sync request / reply
	nonce     uint32
	configTag uint64

	// input / input ack
	startFrame uint64
	ackFrame   uint64
	inputs     []Input

	// quality report / reply
	frameAdvantage int32
	timestamp      uint64

	// checksum
	frame    uint64
	checksum uint64
}

func (p packet) encode() []byte {
	buf := make([]byte, 0, 32+len(p.inputs)*InputSize)
	buf = binary.LittleEndian.AppendUint16(buf, packetMagic)
	buf = append(buf, byte(p.kind))
	switch p.kind {
	case kindSyncRequest, kindSyncReply:
		buf = binary.LittleEndian.AppendUint32(buf, p.nonce)
		buf = binary.LittleEndian.AppendUint64(buf, p.configTag)
	case kindInput:
		buf = binary.LittleEndian.AppendUint64(buf, p.startFrame)
		buf = binary.LittleEndian.AppendUint64(buf, p.ackFrame)
		buf = append(buf, byte(len(p.inputs)))
		for _, in := range p.inputs {
			buf = in.AppendBinary(buf)
		}
	case kindInputAck:
		buf = binary.LittleEndian.AppendUint64(buf, p.ackFrame)
	case kindQualityReport:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.frameAdvantage))
		buf = binary.LittleEndian.AppendUint64(buf, p.timestamp)
	case kindQualityReply:
		buf = binary.LittleEndian.AppendUint64(buf, p.timestamp)
	case kindChecksum:
		buf = binary.LittleEndian.AppendUint64(buf, p.frame)
		buf = binary.LittleEndian.AppendUint64(buf, p.checksum)
	}
	return buf
}

func decodePacket(data []byte) (packet, error) {
	if len(data) < headerSize {
		return packet{}, fmt.Errorf("%w: %d byte packet", ErrMalformedPacket, len(data))
	}
	if magic := binary.LittleEndian.Uint16(data); magic != packetMagic {
		return packet{}, fmt.Errorf("%w: bad magic %04x", ErrMalformedPacket, magic)
	}
	p := packet{kind: packetKind(data[2])}
	body := data[headerSize:]
	need := func(n int) error {
		if len(body) != n {
			return fmt.Errorf("%w: %s body is %d bytes, want %d", ErrMalformedPacket, p.kind, len(body), n)
		}
		return nil
	}

	switch p.kind {
	case kindSyncRequest, kindSyncReply:
		if err := need(12); err != nil {
			return packet{}, err
		}
		p.nonce = binary.LittleEndian.Uint32(body[0:4])
		p.configTag = binary.LittleEndian.Uint64(body[4:12])
	case kindInput:
		if len(body) < 17 {
			return packet{}, fmt.Errorf("%w: input body is %d bytes", ErrMalformedPacket, len(body))
		}
		p.startFrame = binary.LittleEndian.Uint64(body[0:8])
		p.ackFrame = binary.LittleEndian.Uint64(body[8:16])
		count := int(body[16])
		if count > maxInputsPerPacket {
			return packet{}, fmt.Errorf("%w: %d inputs exceeds %d", ErrMalformedPacket, count, maxInputsPerPacket)
		}
		if err := need(17 + count*InputSize); err != nil {
			return packet{}, err
		}
		p.inputs = make([]Input, count)
		for i := range p.inputs {
			offset := 17 + i*InputSize
			if err := p.inputs[i].UnmarshalBinary(body[offset : offset+InputSize]); err != nil {
				return packet{}, err
			}
		}
	case kindInputAck:
		if err := need(8); err != nil {
			return packet{}, err
		}
		p.ackFrame = binary.LittleEndian.Uint64(body)
	case kindQualityReport:
		if err := need(12); err != nil {
			return packet{}, err
		}
		p.frameAdvantage = int32(binary.LittleEndian.Uint32(body[0:4]))
		p.timestamp = binary.LittleEndian.Uint64(body[4:12])
	case kindQualityReply:
		if err := need(8); err != nil {
			return packet{}, err
		}
		p.timestamp = binary.LittleEndian.Uint64(body)
	case kindKeepAlive:
		if err := need(0); err != nil {
			return packet{}, err
		}
	case kindChecksum:
		if err := need(16); err != nil {
			return packet{}, err
		}
		p.frame = binary.LittleEndian.Uint64(body[0:8])
		p.checksum = binary.LittleEndian.Uint64(body[8:16])
	default:
		return packet{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedPacket, uint8(p.kind))
	}
	return p, nil
}
