package server

import (
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/riobard/tftpd/pkg/types"
)

// Kind distinguishes which direction a session moves bytes.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

// Session is one client's TFTP transfer, from accepted RRQ/WRQ to
// completion, timeout, or fatal error. It is owned exclusively by the
// Registry; nothing outside the listener's single goroutine touches it.
type Session struct {
	Remote *net.UDPAddr
	Conn   *net.UDPConn // the session's ephemeral local_socket (its TID)

	Kind    Kind
	Reader  io.ReadCloser
	Writer  io.WriteCloser
	Options types.NegotiatedOptions

	HighestSent    uint16
	LastAckBlock   uint16
	LastBlockShort bool
	LastFrame      []byte

	Deadline   time.Time
	Retries    int
	MaxRetries int
	Finished   bool

	// DefaultTimeoutSeconds is the operator-configured timeout offered
	// when the client negotiates none of its own.
	DefaultTimeoutSeconds int

	log *zap.SugaredLogger
}

// NewSession allocates session state around an already-dialed ephemeral
// socket. Begin (see transfer.go) drives it through its first reply.
func NewSession(
	remote *net.UDPAddr, conn *net.UDPConn, kind Kind,
	maxRetries int, defaultTimeoutSeconds int, log *zap.SugaredLogger,
) *Session {
	return &Session{
		Remote:                remote,
		Conn:                  conn,
		Kind:                  kind,
		MaxRetries:            maxRetries,
		DefaultTimeoutSeconds: defaultTimeoutSeconds,
		log:                   log,
	}
}

// Close releases the session's stream and ephemeral socket. Safe to call
// more than once.
func (s *Session) Close() {
	if s.Reader != nil {
		_ = s.Reader.Close()
		s.Reader = nil
	}

	if s.Writer != nil {
		_ = s.Writer.Close()
		s.Writer = nil
	}

	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}

func (s *Session) refreshDeadline() {
	s.Deadline = time.Now().Add(time.Duration(s.Options.TimeoutSeconds) * time.Second)
}

// Retransmit resends the last frame sent on a timeout tick, per §4.3.5;
// the caller is responsible for deciding whether max_retry has already
// been exhausted.
func (s *Session) Retransmit() error {
	s.Retries++
	s.refreshDeadline()

	if _, err := s.Conn.Write(s.LastFrame); err != nil {
		return err
	}

	return nil
}

// ExceededRetries reports whether the next timeout should remove the
// session silently instead of retransmitting again.
func (s *Session) ExceededRetries() bool {
	return s.Retries >= s.MaxRetries
}
