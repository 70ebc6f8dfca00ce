package server

import (
	"fmt"
	"net"

	"github.com/riobard/tftpd/pkg/types"
)

func notDefinedError(msg string) *types.Error {
	return &types.Error{
		Opcode:    types.OpCodeError,
		ErrorCode: types.ErrNotDefined,
		ErrMsg:    msg,
	}
}

func resolveErrorPacket(rerr *ResolveError) *types.Error {
	return &types.Error{
		Opcode:    types.OpCodeError,
		ErrorCode: rerr.Kind,
		ErrMsg:    rerr.Msg,
	}
}

// writeFrame marshals and writes f to conn, which is always a connected,
// per-session ephemeral socket (the session's TID).
func writeFrame(conn *net.UDPConn, f types.Frame) error {
	b, err := f.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling frame: %w", err)
	}

	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("error while writing frame: %w", err)
	}

	return nil
}

// writeErrorTo sends an ERROR frame to addr from the listener's own
// socket, used before a session (and its ephemeral TID) exists.
func writeErrorTo(conn *net.UDPConn, addr *net.UDPAddr, errPacket *types.Error) error {
	b, err := errPacket.MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling error frame: %w", err)
	}

	if _, err := conn.WriteToUDP(b, addr); err != nil {
		return fmt.Errorf("error while writing error frame: %w", err)
	}

	return nil
}
