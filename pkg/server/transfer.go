package server

import (
	"io"

	"github.com/riobard/tftpd/pkg/types"
)

// Begin drives the session through its first reply (§4.3.1 steps 3-5):
// negotiate options, then send either an OACK or the plain first
// DATA/ACK. fileSize/haveSize supply the tsize answer for RRQ; WRQ has no
// known size yet, so both are zero/false.
func (s *Session) Begin(req *types.Request, fileSize int64, haveSize bool) *types.Error {
	opts, accepted, negErr := types.Negotiate(req.Options, fileSize, haveSize, s.DefaultTimeoutSeconds)
	if negErr != nil {
		return negErr
	}

	s.Options = opts
	s.refreshDeadline()

	if len(accepted) > 0 {
		oack := &types.OAck{Opcode: types.OpCodeOACK, Options: accepted}

		b, err := oack.MarshalBinary()
		if err != nil {
			return notDefinedError(err.Error())
		}

		if _, err := s.Conn.Write(b); err != nil {
			return notDefinedError(err.Error())
		}

		s.LastFrame = b

		return nil
	}

	switch s.Kind {
	case KindRead:
		return s.sendWindow()
	case KindWrite:
		ack := &types.Ack{Opcode: types.OpCodeACK, BlockNum: 0}

		b, err := ack.MarshalBinary()
		if err != nil {
			return notDefinedError(err.Error())
		}

		if _, err := s.Conn.Write(b); err != nil {
			return notDefinedError(err.Error())
		}

		s.LastFrame = b

		return nil
	}

	return nil
}

// HandleFrame advances the session's state machine on a received frame.
// It returns true when the session is finished and should be removed from
// the registry.
func (s *Session) HandleFrame(frame types.Frame) bool {
	switch f := frame.(type) {
	case *types.Ack:
		if s.Kind != KindRead {
			return false
		}

		return s.onAck(f)
	case *types.Data:
		if s.Kind != KindWrite {
			return false
		}

		return s.onData(f)
	case *types.Error:
		return true
	default:
		return false
	}
}

// onAck implements §4.3.2: the server is the sender.
func (s *Session) onAck(ack *types.Ack) bool {
	if ack.BlockNum != s.HighestSent {
		return false // out of window; ignore, don't advance, don't reset retries
	}

	s.LastAckBlock = ack.BlockNum
	s.Retries = 0
	s.refreshDeadline()

	if s.LastBlockShort {
		s.Finished = true

		return true
	}

	if errPacket := s.sendWindow(); errPacket != nil {
		s.log.Errorf("error while sending window: %s", errPacket.ErrMsg)

		return true
	}

	return false
}

// sendWindow emits up to WindowSize consecutive DATA frames starting
// right after HighestSent, remembering only the very last one for
// retransmission (§4.3.2, §9 "last_frame_buffer").
func (s *Session) sendWindow() *types.Error {
	for i := 0; i < s.Options.WindowSize; i++ {
		block := make([]byte, s.Options.BlockSize)

		n, err := io.ReadFull(s.Reader, block)

		short := false

		switch {
		case err == io.EOF:
			block = block[:0]
			short = true
		case err == io.ErrUnexpectedEOF:
			block = block[:n]
			short = true
		case err != nil:
			return notDefinedError("error while reading file block")
		default:
			block = block[:n]
		}

		blockNum := s.HighestSent + 1

		data := &types.Data{Opcode: types.OpCodeDATA, BlockNum: blockNum, Payload: block}

		b, merr := data.MarshalBinary()
		if merr != nil {
			return notDefinedError(merr.Error())
		}

		if _, werr := s.Conn.Write(b); werr != nil {
			return notDefinedError(werr.Error())
		}

		s.log.Debugf("sent block#=%d, sent #bytes=%d", blockNum, len(block))

		s.HighestSent = blockNum
		s.LastFrame = b
		s.LastBlockShort = short

		if short {
			break
		}
	}

	s.refreshDeadline()

	return nil
}

// onData implements §4.3.3: the server is the receiver.
func (s *Session) onData(data *types.Data) bool {
	switch {
	case data.BlockNum == s.LastAckBlock+1:
		if _, err := s.Writer.Write(data.Payload); err != nil {
			s.log.Errorf("error while writing block to file: %s", err.Error())

			return true
		}

		s.LastAckBlock = data.BlockNum
		s.Retries = 0
		s.refreshDeadline()

		short := len(data.Payload) < s.Options.BlockSize

		ack := &types.Ack{Opcode: types.OpCodeACK, BlockNum: data.BlockNum}

		b, err := ack.MarshalBinary()
		if err != nil {
			s.log.Errorf("error while marshalling ack: %s", err.Error())

			return true
		}

		if _, err := s.Conn.Write(b); err != nil {
			s.log.Errorf("error while writing ack: %s", err.Error())

			return true
		}

		s.LastFrame = b
		s.log.Debugf("received block#=%d, received #bytes=%d", data.BlockNum, len(data.Payload))

		if short {
			s.Finished = true

			return true
		}

		return false
	case data.BlockNum == s.LastAckBlock:
		// duplicate: resend the prior ACK without reappending
		if _, err := s.Conn.Write(s.LastFrame); err != nil {
			s.log.Errorf("error while resending ack: %s", err.Error())
		}

		return false
	default:
		return false
	}
}
