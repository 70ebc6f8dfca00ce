package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/riobard/tftpd/pkg/utils"
)

// OAck models an OACK frame: the subset of requested options the server
// is willing to honor, with their final negotiated values.
type OAck struct {
	Opcode  OpCode
	Options []Option
}

func (o *OAck) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, &o.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	for _, opt := range o.Options {
		if _, err := b.WriteString(opt.Name); err != nil {
			return nil, fmt.Errorf("error while writing option name: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte after option name: %w", err)
		}

		if _, err := b.WriteString(opt.Value); err != nil {
			return nil, fmt.Errorf("error while writing option value: %w", err)
		}

		if err := b.WriteByte(0); err != nil {
			return nil, fmt.Errorf("error while writing null byte after option value: %w", err)
		}
	}

	return b.Bytes(), nil
}

func (o *OAck) UnmarshalBinary(data []byte) error {
	b := bytes.NewBuffer(data)

	if err := binary.Read(b, binary.BigEndian, &o.Opcode); err != nil {
		return fmt.Errorf("error while reading opcode: %w", err)
	}

	if o.Opcode != OpCodeOACK {
		return utils.ErrWrongOpCode
	}

	o.Options = nil

	for b.Len() > 0 {
		name, err := b.ReadString(0)
		if err != nil {
			break
		}

		value, err := b.ReadString(0)
		if err != nil {
			break
		}

		o.Options = append(o.Options, Option{
			Name:  name[:len(name)-1],
			Value: value[:len(value)-1],
		})
	}

	return nil
}
