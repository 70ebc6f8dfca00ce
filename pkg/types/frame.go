package types

import (
	"encoding/binary"

	"github.com/riobard/tftpd/pkg/utils"
)

// Frame is implemented by every decodable TFTP frame type.
type Frame interface {
	MarshalBinary() ([]byte, error)
}

// Decode inspects the opcode and parses data into the matching Frame
// type. Frames shorter than 4 bytes are rejected before the opcode is
// even read, per RFC 1350's minimum frame size.
func Decode(data []byte) (Frame, error) {
	if len(data) < 4 {
		return nil, utils.ErrMalformedFrame
	}

	op := OpCode(binary.BigEndian.Uint16(data[:2]))

	switch op {
	case OpCodeRRQ, OpCodeWRQ:
		var r Request
		if err := r.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return &r, nil
	case OpCodeDATA:
		var d Data
		if err := d.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return &d, nil
	case OpCodeACK:
		var a Ack
		if err := a.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return &a, nil
	case OpCodeError:
		var e Error
		if err := e.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return &e, nil
	case OpCodeOACK:
		var o OAck
		if err := o.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return &o, nil
	default:
		return nil, utils.ErrUnknownOpCode
	}
}

// Encode is the symmetric counterpart to Decode: any Frame already knows
// how to marshal itself, so Encode is a thin, explicit name for call
// sites that prefer decode/encode symmetry over calling MarshalBinary
// directly.
func Encode(f Frame) ([]byte, error) {
	return f.MarshalBinary()
}
