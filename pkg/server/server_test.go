package server_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/riobard/tftpd/pkg/server"
	"github.com/riobard/tftpd/pkg/types"
)

func startTestServer(t *testing.T, root string) (addr string, stop func()) {
	t.Helper()

	l := zap.NewNop().Sugar()

	// NewServer resolves its own listen address on ListenAndServe, so bind
	// an ephemeral port first, release it, and hand the address to the
	// server under test.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	boundAddr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	s := server.NewServer(l, boundAddr, root, server.ModeBoth, 1, 5, 100)

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.ListenAndServe()
	}()

	time.Sleep(50 * time.Millisecond)

	return boundAddr, func() {
		_ = s.Close()
		<-errCh
	}
}

// testConn is an unconnected client socket. It sends to the server's
// listening address until a reply arrives, then to the endpoint that reply
// came from (the session's ephemeral TID).
type testConn struct {
	*net.UDPConn
	peer *net.UDPAddr
}

func dial(t *testing.T, addr string) *testConn {
	t.Helper()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	return &testConn{UDPConn: conn, peer: udpAddr}
}

func readFrame(t *testing.T, conn *testConn) types.Frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, types.ScratchBufferSize)

	n, from, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	conn.peer = from

	frame, err := types.Decode(buf[:n])
	require.NoError(t, err)

	return frame
}

func sendFrame(t *testing.T, conn *testConn, f types.Frame) {
	t.Helper()

	b, err := f.MarshalBinary()
	require.NoError(t, err)

	_, err = conn.WriteToUDP(b, conn.peer)
	require.NoError(t, err)
}

func TestSmallReadRequestEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("Hello"), 0o644))

	addr, stop := startTestServer(t, root)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	sendFrame(t, conn, &types.Request{Opcode: types.OpCodeRRQ, Filename: "hello.txt", Mode: "octet"})

	data, ok := readFrame(t, conn).(*types.Data)
	require.True(t, ok)
	require.EqualValues(t, 1, data.BlockNum)
	require.Equal(t, "Hello", string(data.Payload))

	sendFrame(t, conn, &types.Ack{Opcode: types.OpCodeACK, BlockNum: 1})
}

func TestReadRequestWithOptionNegotiation(t *testing.T) {
	root := t.TempDir()
	payload := make([]byte, 5000)

	for i := range payload {
		payload[i] = byte(i % 256)
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "big.bin"), payload, 0o644))

	addr, stop := startTestServer(t, root)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	sendFrame(t, conn, &types.Request{
		Opcode: types.OpCodeRRQ, Filename: "big.bin", Mode: "octet",
		Options: []types.Option{
			{Name: "blksize", Value: "1024"},
			{Name: "tsize", Value: "0"},
		},
	})

	oack, ok := readFrame(t, conn).(*types.OAck)
	require.True(t, ok)

	values := map[string]string{}
	for _, o := range oack.Options {
		values[o.NormalizedName()] = o.Value
	}

	require.Equal(t, "1024", values["blksize"])
	require.Equal(t, "5000", values["tsize"])

	sendFrame(t, conn, &types.Ack{Opcode: types.OpCodeACK, BlockNum: 0})

	received := 0
	block := uint16(1)

	for {
		data, ok := readFrame(t, conn).(*types.Data)
		require.True(t, ok)
		require.Equal(t, block, data.BlockNum)

		received += len(data.Payload)
		sendFrame(t, conn, &types.Ack{Opcode: types.OpCodeACK, BlockNum: block})

		if len(data.Payload) < 1024 {
			break
		}

		block++
	}

	require.Equal(t, 5000, received)
}

func TestWriteRequestRejectsExistingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("x"), 0o644))

	addr, stop := startTestServer(t, root)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	sendFrame(t, conn, &types.Request{Opcode: types.OpCodeWRQ, Filename: "existing.txt", Mode: "octet"})

	errFrame, ok := readFrame(t, conn).(*types.Error)
	require.True(t, ok)
	require.Equal(t, types.ErrFileAlreadyExists, errFrame.ErrorCode)
}

func TestReadRequestRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()

	addr, stop := startTestServer(t, root)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	sendFrame(t, conn, &types.Request{Opcode: types.OpCodeRRQ, Filename: "../../etc/passwd", Mode: "octet"})

	errFrame, ok := readFrame(t, conn).(*types.Error)
	require.True(t, ok)
	require.Equal(t, types.ErrAccessViolation, errFrame.ErrorCode)
}

func TestWriteRequestRoundTrip(t *testing.T) {
	root := t.TempDir()

	addr, stop := startTestServer(t, root)
	defer stop()

	conn := dial(t, addr)
	defer conn.Close()

	sendFrame(t, conn, &types.Request{Opcode: types.OpCodeWRQ, Filename: "uploaded.txt", Mode: "octet"})

	ack, ok := readFrame(t, conn).(*types.Ack)
	require.True(t, ok)
	require.EqualValues(t, 0, ack.BlockNum)

	sendFrame(t, conn, &types.Data{Opcode: types.OpCodeDATA, BlockNum: 1, Payload: []byte("uploaded bytes")})

	ack, ok = readFrame(t, conn).(*types.Ack)
	require.True(t, ok)
	require.EqualValues(t, 1, ack.BlockNum)

	b, err := os.ReadFile(filepath.Join(root, "uploaded.txt"))
	require.NoError(t, err)
	require.Equal(t, "uploaded bytes", string(b))
}

func TestRetransmitsThenGivesUpSilently(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("Hello"), 0o644))

	l := zap.NewNop().Sugar()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	boundAddr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())

	s := server.NewServer(l, boundAddr, root, server.ModeBoth, 1, 2, 100)

	errCh := make(chan error, 1)

	go func() { errCh <- s.ListenAndServe() }()

	time.Sleep(50 * time.Millisecond)

	defer func() {
		_ = s.Close()
		<-errCh
	}()

	client := dial(t, boundAddr)
	defer client.Close()

	sendFrame(t, client, &types.Request{Opcode: types.OpCodeRRQ, Filename: "hello.txt", Mode: "octet"})

	data, ok := readFrame(t, client).(*types.Data)
	require.True(t, ok)
	require.EqualValues(t, 1, data.BlockNum)

	// Never ACK: the server must retransmit block 1 up to max_retry times,
	// then remove the session silently (no further DATA, no ERROR).
	for i := 0; i < 2; i++ {
		retry, ok := readFrame(t, client).(*types.Data)
		require.True(t, ok)
		require.EqualValues(t, 1, retry.BlockNum)
	}

	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))

	buf := make([]byte, types.ScratchBufferSize)
	_, err = client.Read(buf)
	require.Error(t, err, "session should have been torn down silently after exceeding max_retry")
}
