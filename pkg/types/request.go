package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/riobard/tftpd/pkg/utils"
)

// Option is a single name/value pair as carried on the wire by RRQ, WRQ
// and OACK frames. Names are preserved exactly as offered; callers that
// need case-insensitive comparison use NormalizedName.
type Option struct {
	Name  string
	Value string
}

// NormalizedName lowercases the option name for comparison against the
// recognized option constants (RFC 2347 requires servers accept any case).
func (o Option) NormalizedName() string {
	return strings.ToLower(o.Name)
}

// Request models an RRQ or WRQ frame.
type Request struct {
	Opcode   OpCode
	Filename string
	Mode     string
	Options  []Option
}

// NormalizedMode lowercases Mode for case-insensitive comparison.
func (r *Request) NormalizedMode() Mode {
	return Mode(strings.ToLower(r.Mode))
}

func (r *Request) MarshalBinary() ([]byte, error) {
	b := new(bytes.Buffer)

	if err := binary.Write(b, binary.BigEndian, &r.Opcode); err != nil {
		return nil, fmt.Errorf("error while writing opcode: %w", err)
	}

	if _, err := b.WriteString(r.Filename); err != nil {
		return nil, fmt.Errorf("error while writing filename: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after filename: %w", err)
	}

	if _, err := b.WriteString(r.Mode); err != nil {
		return nil, fmt.Errorf("error while writing mode: %w", err)
	}

	if err := b.WriteByte(0); err != nil {
		return nil, fmt.Errorf("error while writing null byte after mode: %w", err)
	}

	for _, opt := range r.Options {
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

func (r *Request) UnmarshalBinary(data []byte) error {
	var err error

	rd := bytes.NewBuffer(data)

	if err = binary.Read(rd, binary.BigEndian, &r.Opcode); err != nil {
		return fmt.Errorf("error while decoding opcode: %w", err)
	}

	if r.Opcode != OpCodeRRQ && r.Opcode != OpCodeWRQ {
		return utils.ErrWrongOpCode
	}

	r.Filename, err = rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding filename: %w", err)
	}

	r.Filename = strings.TrimRight(r.Filename, "\x00")

	r.Mode, err = rd.ReadString(0)
	if err != nil {
		return fmt.Errorf("error while decoding mode: %w", err)
	}

	r.Mode = strings.TrimRight(r.Mode, "\x00")

	r.Options = nil

	for rd.Len() > 0 {
		name, err := rd.ReadString(0)
		if err != nil {
			// A trailing option name without a value is malformed; the
			// request itself is still structurally decodable, so the
			// dangling option is simply dropped.
			break
		}

		value, err := rd.ReadString(0)
		if err != nil {
			break
		}

		r.Options = append(r.Options, Option{
			Name:  strings.TrimRight(name, "\x00"),
			Value: strings.TrimRight(value, "\x00"),
		})
	}

	return nil
}
