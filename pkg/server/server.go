package server

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/riobard/tftpd/pkg/types"
	"github.com/riobard/tftpd/pkg/utils"
)

// Mode controls which request kinds this server accepts.
type Mode int

const (
	ModeBoth Mode = iota
	ModeReadOnly
	ModeWriteOnly
)

// pollInterval is how long each socket poll blocks waiting for a
// datagram before the loop moves on to the next socket in its round.
// Kept short so the listener socket and every session's ephemeral socket
// all get a fair, frequent turn within a single goroutine.
const pollInterval = 20 * time.Millisecond

// idleSweepInterval is the cadence of the timeout sweep (§4.3.5),
// satisfying the "at most every 512ms" bound from §4.4.
const idleSweepInterval = time.Duration(types.IdleTickInterval) * time.Millisecond

// Server is the single-threaded TFTP listener: one goroutine owns the
// listening socket, the registry, and every session's state. Nothing here
// is shared with any other goroutine.
type Server struct {
	addr           string
	root           string
	mode           Mode
	timeoutSeconds uint
	maxRetries     int
	maxConnections int

	log      *zap.SugaredLogger
	resolver Resolver
	registry *Registry
	conn     *net.UDPConn

	closing chan struct{}
}

// NewServer builds a Server. root is the directory RRQ/WRQ filenames are
// sandboxed under.
func NewServer(
	log *zap.SugaredLogger, addr string, root string, mode Mode,
	timeoutSeconds uint, maxRetries int, maxConnections int,
) *Server {
	return &Server{
		addr:           addr,
		root:           root,
		mode:           mode,
		timeoutSeconds: timeoutSeconds,
		maxRetries:     maxRetries,
		maxConnections: maxConnections,
		log:            log,
		resolver:       NewDirResolver(root),
		registry:       NewRegistry(maxConnections),
		closing:        make(chan struct{}),
	}
}

// ListenAndServe binds the listener socket and runs the cooperative loop
// until Close is called. Bind failure is reported immediately, before any
// session work begins.
func (s *Server) ListenAndServe() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("%w: %s", utils.ErrStartingServer, err.Error())
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%w: %s", utils.ErrStartingServer, err.Error())
	}

	s.conn = conn
	s.log.Infof("tftp server listening on %s, root=%s", s.addr, s.root)

	lastSweep := time.Now()
	scratch := make([]byte, types.ScratchBufferSize)

	for {
		select {
		case <-s.closing:
			s.registry.CloseAll()

			return nil
		default:
		}

		progressed := s.pollListener(scratch)
		progressed = s.pollSessions(scratch) || progressed

		if time.Since(lastSweep) >= idleSweepInterval {
			s.sweepIdle()
			lastSweep = time.Now()
		}

		if !progressed {
			time.Sleep(pollInterval)
		}
	}
}

// Close stops the loop and releases the listening socket. Every active
// session's stream is closed; no farewell frame is sent.
func (s *Server) Close() error {
	close(s.closing)

	if s.conn == nil {
		return nil
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("error while closing connection: %w", err)
	}

	return nil
}

func (s *Server) pollListener(scratch []byte) bool {
	if err := s.conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
		return false
	}

	n, remote, err := s.conn.ReadFromUDP(scratch)
	if err != nil {
		return false
	}

	if n < 4 {
		return n > 0
	}

	s.dispatch(remote, scratch[:n])

	return true
}

func (s *Server) pollSessions(scratch []byte) bool {
	progressed := false

	for _, sess := range s.registry.All() {
		if err := sess.Conn.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			continue
		}

		n, err := sess.Conn.Read(scratch)
		if err != nil {
			continue
		}

		progressed = true

		if n < 4 {
			continue
		}

		s.dispatch(sess.Remote, scratch[:n])
	}

	return progressed
}

// dispatch routes one already-length-checked datagram to its session, or
// treats it as a fresh RRQ/WRQ (§4.4).
func (s *Server) dispatch(remote *net.UDPAddr, data []byte) {
	sess := s.registry.Lookup(remote)

	frame, decodeErr := types.Decode(data)

	if sess != nil {
		if decodeErr != nil {
			_ = writeFrame(sess.Conn, &types.Error{
				Opcode: types.OpCodeError, ErrorCode: types.ErrIllegalTftpOp,
				ErrMsg: "illegal operation",
			})

			return
		}

		if sess.HandleFrame(frame) {
			s.registry.Remove(remote)
		}

		return
	}

	if decodeErr != nil {
		s.rejectStranger(remote)

		return
	}

	req, ok := frame.(*types.Request)
	if !ok {
		s.rejectStranger(remote)

		return
	}

	s.startSession(remote, req)
}

// rejectStranger answers a datagram from a remote with no live session and
// no parseable RRQ/WRQ: §4.4's "unknown TID" case.
func (s *Server) rejectStranger(remote *net.UDPAddr) {
	errPacket := &types.Error{
		Opcode:    types.OpCodeError,
		ErrorCode: types.ErrUnknownTransferId,
		ErrMsg:    "unknown transfer id",
	}

	if err := writeErrorTo(s.conn, remote, errPacket); err != nil {
		s.log.Errorf("error while replying to unknown peer: %s", err.Error())
	}
}

func (s *Server) startSession(remote *net.UDPAddr, req *types.Request) {
	kind := KindRead
	if req.Opcode == types.OpCodeWRQ {
		kind = KindWrite
	}

	if req.NormalizedMode() == types.ModeMail {
		_ = writeErrorTo(s.conn, remote, &types.Error{
			Opcode: types.OpCodeError, ErrorCode: types.ErrIllegalTftpOp,
			ErrMsg: "mail mode not supported",
		})

		return
	}

	if !s.kindAllowed(kind) {
		_ = writeErrorTo(s.conn, remote, &types.Error{
			Opcode: types.OpCodeError, ErrorCode: types.ErrIllegalTftpOp,
			ErrMsg: utils.ErrRequestKindDisabled.Error(),
		})

		return
	}

	if s.registry.Len() >= s.maxConnections {
		_ = writeErrorTo(s.conn, remote, &types.Error{
			Opcode: types.OpCodeError, ErrorCode: types.ErrIllegalTftpOp,
			ErrMsg: utils.ErrTooManyConnections.Error(),
		})

		return
	}

	conn, err := net.DialUDP("udp", &net.UDPAddr{Port: 0}, remote)
	if err != nil {
		s.log.Errorf("error while allocating ephemeral socket: %s", err.Error())

		return
	}

	sess := NewSession(remote, conn, kind, s.maxRetries, int(s.timeoutSeconds), s.log)

	var fileSize int64

	haveSize := false

	switch kind {
	case KindRead:
		reader, size, rerr := s.resolver.OpenRead(req.Filename)
		if rerr != nil {
			_ = writeErrorTo(s.conn, remote, resolveErrorPacket(rerr))
			_ = conn.Close()

			return
		}

		sess.Reader = reader
		fileSize = size
		haveSize = true
	case KindWrite:
		writer, rerr := s.resolver.OpenWrite(req.Filename)
		if rerr != nil {
			_ = writeErrorTo(s.conn, remote, resolveErrorPacket(rerr))
			_ = conn.Close()

			return
		}

		sess.Writer = writer
	}

	if negErr := sess.Begin(req, fileSize, haveSize); negErr != nil {
		_ = writeFrame(conn, negErr)
		sess.Close()

		return
	}

	if !s.registry.Add(sess) {
		sess.Close()
	}
}

func (s *Server) kindAllowed(kind Kind) bool {
	switch s.mode {
	case ModeReadOnly:
		return kind == KindRead
	case ModeWriteOnly:
		return kind == KindWrite
	default:
		return true
	}
}

// sweepIdle implements §4.3.5: retransmit on every timeout tick, give up
// silently after max_retry.
func (s *Server) sweepIdle() {
	now := time.Now()

	for _, sess := range s.registry.All() {
		if now.Before(sess.Deadline) {
			continue
		}

		if sess.ExceededRetries() {
			s.registry.Remove(sess.Remote)

			continue
		}

		if err := sess.Retransmit(); err != nil {
			s.log.Errorf("error while retransmitting to %s: %s", sess.Remote.String(), err.Error())
		}
	}
}
