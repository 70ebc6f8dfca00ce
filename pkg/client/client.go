package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/riobard/tftpd/pkg/types"
)

// Connector is a minimal interactive TFTP client, used by the CLI REPL
// as a black-box counterpart to pkg/server.
type Connector interface {
	Connect(addr string) error
	Get(ctx context.Context, filename string) error
	Put(ctx context.Context, filename string) error
	SetTimeout(timeout uint)
	SetTrace(on bool)
	Close() error
}

// Client is a bare-bones TFTP client: one transfer in flight at a time,
// no option negotiation beyond what Get/Put offer, blocking and
// synchronous like the rest of this package's call sites expect.
type Client struct {
	addr    string
	conn    *net.UDPConn
	l       *zap.SugaredLogger
	timeout time.Duration
	trace   bool
	retries int
}

// NewClient builds a Client that gives up on an unresponsive peer after
// maxRetries retransmits of its own.
func NewClient(l *zap.SugaredLogger, maxRetries uint) Connector {
	return &Client{
		l:       l,
		timeout: 5 * time.Second,
		retries: int(maxRetries),
	}
}

func (c *Client) SetTimeout(timeout uint) {
	c.timeout = time.Duration(timeout) * time.Second
}

func (c *Client) SetTrace(on bool) {
	c.trace = on
}

func (c *Client) Connect(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("error while resolving %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return fmt.Errorf("error while dialing %s: %w", addr, err)
	}

	c.addr = addr
	c.conn = conn

	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

func (c *Client) logTrace(format string, args ...interface{}) {
	if c.trace {
		c.l.Debugf(format, args...)
	}
}

// Get issues an RRQ for filename, offering windowsize=4 and blksize=1024,
// and writes the transferred bytes to a same-named file in the current
// directory.
func (c *Client) Get(ctx context.Context, filename string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	out, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error while creating %s: %w", filename, err)
	}
	defer out.Close()

	req := &types.Request{
		Opcode:   types.OpCodeRRQ,
		Filename: filename,
		Mode:     string(types.ModeOctet),
		Options: []types.Option{
			{Name: types.OptBlockSize, Value: "1024"},
			{Name: types.OptWindowSize, Value: "4"},
		},
	}

	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}

	blockSize := types.DefaultBlockSize
	lastAck := uint16(0)

	for {
		switch f := reply.(type) {
		case *types.OAck:
			for _, opt := range f.Options {
				if opt.NormalizedName() == types.OptBlockSize {
					if v, perr := strconv.Atoi(opt.Value); perr == nil {
						blockSize = v
					}
				}
			}

			reply, err = c.ack(ctx, 0)
		case *types.Data:
			if f.BlockNum != lastAck+1 {
				return fmt.Errorf("out of order block %d", f.BlockNum)
			}

			if _, werr := out.Write(f.Payload); werr != nil {
				return fmt.Errorf("error while writing to %s: %w", filename, werr)
			}

			lastAck = f.BlockNum
			c.logTrace("received block#=%d bytes=%d", f.BlockNum, len(f.Payload))

			if len(f.Payload) < blockSize {
				return c.sendFinalAck(lastAck)
			}

			reply, err = c.ack(ctx, lastAck)
		case *types.Error:
			return fmt.Errorf("server error %d: %s", f.ErrorCode, f.ErrMsg)
		default:
			return fmt.Errorf("unexpected frame from server")
		}

		if err != nil {
			return err
		}
	}
}

// Put issues a WRQ for filename, reading the same-named local file and
// streaming it in 512-byte blocks.
func (c *Client) Put(ctx context.Context, filename string) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	in, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("error while opening %s: %w", filename, err)
	}
	defer in.Close()

	req := &types.Request{
		Opcode:   types.OpCodeWRQ,
		Filename: filename,
		Mode:     string(types.ModeOctet),
	}

	reply, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}

	ack, ok := reply.(*types.Ack)
	if !ok {
		if e, ok := reply.(*types.Error); ok {
			return fmt.Errorf("server error %d: %s", e.ErrorCode, e.ErrMsg)
		}

		return fmt.Errorf("unexpected frame from server")
	}

	blockNum := ack.BlockNum

	for {
		block := make([]byte, types.DefaultBlockSize)

		n, rerr := io.ReadFull(in, block)

		short := rerr == io.EOF || rerr == io.ErrUnexpectedEOF
		if rerr != nil && !short {
			return fmt.Errorf("error while reading %s: %w", filename, rerr)
		}

		block = block[:n]
		blockNum++

		data := &types.Data{Opcode: types.OpCodeDATA, BlockNum: blockNum, Payload: block}

		reply, err = c.exchange(ctx, data)
		if err != nil {
			return err
		}

		ack, ok = reply.(*types.Ack)
		if !ok {
			if e, ok := reply.(*types.Error); ok {
				return fmt.Errorf("server error %d: %s", e.ErrorCode, e.ErrMsg)
			}

			return fmt.Errorf("unexpected frame from server")
		}

		c.logTrace("sent block#=%d bytes=%d", blockNum, n)

		if short {
			return nil
		}
	}
}

func (c *Client) ack(ctx context.Context, blockNum uint16) (types.Frame, error) {
	return c.exchange(ctx, &types.Ack{Opcode: types.OpCodeACK, BlockNum: blockNum})
}

// sendFinalAck acknowledges the terminating short block. No further reply
// is expected, so it writes once rather than going through exchange's
// retry-and-await loop.
func (c *Client) sendFinalAck(blockNum uint16) error {
	b, err := (&types.Ack{Opcode: types.OpCodeACK, BlockNum: blockNum}).MarshalBinary()
	if err != nil {
		return fmt.Errorf("error while marshalling ack: %w", err)
	}

	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("error while sending ack: %w", err)
	}

	return nil
}

// exchange sends f and waits for a single reply, retrying on timeout up
// to c.retries times.
func (c *Client) exchange(ctx context.Context, f types.Frame) (types.Frame, error) {
	b, err := f.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("error while marshalling frame: %w", err)
	}

	buf := make([]byte, types.ScratchBufferSize)

	for attempt := 0; attempt <= c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, err := c.conn.Write(b); err != nil {
			return nil, fmt.Errorf("error while sending frame: %w", err)
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("error while setting read deadline: %w", err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			continue
		}

		return types.Decode(buf[:n])
	}

	return nil, fmt.Errorf("no response from %s after %d retries", c.addr, c.retries)
}
