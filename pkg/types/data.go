package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/riobard/tftpd/pkg/utils"
)

// Data models a DATA frame. Payload length is bounded by the session's
// negotiated block size, not by this type; the codec only rejects payloads
// too large to ever be legal under any negotiation (RFC 2348's ceiling).
type Data struct {
	Opcode   OpCode
	BlockNum uint16
	Payload  []byte
}

func (d *Data) MarshalBinary() ([]byte, error) {
	if len(d.Payload) > MaxBlockSize {
		return nil, utils.ErrPacketMarshall
	}

	b := new(bytes.Buffer)
	b.Grow(2 + 2 + len(d.Payload))

	if err := binary.Write(b, binary.BigEndian, &d.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if err := binary.Write(b, binary.BigEndian, &d.BlockNum); err != nil {
		return nil, fmt.Errorf("error while writing block#: %w", err)
	}

	if _, err := b.Write(d.Payload); err != nil {
		return nil, fmt.Errorf("error while writing payload: %w", err)
	}

	return b.Bytes(), nil
}

func (d *Data) UnmarshalBinary(data []byte) error {
	b := bytes.NewBuffer(data)

	if err := binary.Read(b, binary.BigEndian, &d.Opcode); err != nil {
		return fmt.Errorf("error while reading opcode: %w", err)
	}

	if d.Opcode != OpCodeDATA {
		return utils.ErrWrongOpCode
	}

	if err := binary.Read(b, binary.BigEndian, &d.BlockNum); err != nil {
		return fmt.Errorf("error while reading block#: %w", err)
	}

	payload := make([]byte, len(data)-4)
	copy(payload, data[4:])
	d.Payload = payload

	return nil
}
