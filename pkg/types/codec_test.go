package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riobard/tftpd/pkg/types"
	"github.com/riobard/tftpd/pkg/utils"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []*types.Request{
		{Opcode: types.OpCodeRRQ, Filename: "hello.txt", Mode: "octet"},
		{
			Opcode:   types.OpCodeWRQ,
			Filename: "big.bin",
			Mode:     "octet",
			Options: []types.Option{
				{Name: "blksize", Value: "1024"},
				{Name: "tsize", Value: "0"},
			},
		},
	}

	for _, want := range cases {
		b, err := want.MarshalBinary()
		require.NoError(t, err)

		var got types.Request
		require.NoError(t, got.UnmarshalBinary(b))
		require.Equal(t, *want, got)
	}
}

func TestDataRoundTrip(t *testing.T) {
	want := &types.Data{Opcode: types.OpCodeDATA, BlockNum: 7, Payload: []byte("some bytes")}

	b, err := want.MarshalBinary()
	require.NoError(t, err)

	var got types.Data
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *want, got)
}

func TestDataShortBlockAllowsEmptyPayload(t *testing.T) {
	want := &types.Data{Opcode: types.OpCodeDATA, BlockNum: 3, Payload: []byte{}}

	b, err := want.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, 4)

	var got types.Data
	require.NoError(t, got.UnmarshalBinary(b))
	require.Empty(t, got.Payload)
}

func TestAckRoundTrip(t *testing.T) {
	want := &types.Ack{Opcode: types.OpCodeACK, BlockNum: 42}

	b, err := want.MarshalBinary()
	require.NoError(t, err)

	var got types.Ack
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *want, got)
}

func TestErrorRoundTrip(t *testing.T) {
	want := &types.Error{Opcode: types.OpCodeError, ErrorCode: types.ErrFileNotFound, ErrMsg: "nope"}

	b, err := want.MarshalBinary()
	require.NoError(t, err)

	var got types.Error
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *want, got)
}

func TestErrorToleratesMissingTrailingNul(t *testing.T) {
	b, err := (&types.Error{Opcode: types.OpCodeError, ErrorCode: types.ErrNotDefined, ErrMsg: "oops"}).MarshalBinary()
	require.NoError(t, err)

	truncated := b[:len(b)-1] // drop the trailing NUL

	var got types.Error
	require.NoError(t, got.UnmarshalBinary(truncated))
	require.Equal(t, "oops", got.ErrMsg)
}

func TestOAckRoundTrip(t *testing.T) {
	want := &types.OAck{
		Opcode: types.OpCodeOACK,
		Options: []types.Option{
			{Name: "blksize", Value: "1024"},
			{Name: "tsize", Value: "5000"},
		},
	}

	b, err := want.MarshalBinary()
	require.NoError(t, err)

	var got types.OAck
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, *want, got)
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	_, err := types.Decode([]byte{0, 1, 0})
	require.ErrorIs(t, err, utils.ErrMalformedFrame)
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	_, err := types.Decode([]byte{0, 99, 0, 0})
	require.ErrorIs(t, err, utils.ErrUnknownOpCode)
}

func TestDecodeDispatchesByOpcode(t *testing.T) {
	data := &types.Data{Opcode: types.OpCodeDATA, BlockNum: 1, Payload: []byte("x")}
	b, err := data.MarshalBinary()
	require.NoError(t, err)

	frame, err := types.Decode(b)
	require.NoError(t, err)

	got, ok := frame.(*types.Data)
	require.True(t, ok)
	require.Equal(t, uint16(1), got.BlockNum)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := &types.Ack{Opcode: types.OpCodeACK, BlockNum: 9}

	b, err := types.Encode(frame)
	require.NoError(t, err)

	decoded, err := types.Decode(b)
	require.NoError(t, err)
	require.Equal(t, frame, decoded)
}
