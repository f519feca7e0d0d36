package server

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolfly/nmdb/internal/settings"
	"github.com/dolfly/nmdb/internal/wire"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServerStartStopEndToEnd(t *testing.T) {
	s, err := settings.Parse([]string{
		"-b", "memory",
		"-t", itoa(freePort(t)), "-T", "127.0.0.1",
		"-u", itoa(freePort(t)), "-U", "127.0.0.1",
		"-l", "127.0.0.1", "-L", itoa(freePort(t)),
		"-s", itoa(freePort(t)), "-S", "127.0.0.1",
		"-c", "128",
	})
	require.NoError(t, err)

	srv, err := New(s)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	time.Sleep(50 * time.Millisecond)

	tcpAddr := s.TCPBindAddr + ":" + itoa(s.TCPPort)
	conn, err := net.Dial("tcp", tcpAddr)
	require.NoError(t, err)
	defer conn.Close()

	setFrame, err := wire.Encode(wire.Request{Command: wire.CmdSet, Key: []byte("x"), Value: []byte("1"), Flags: wire.FlagCacheOnly, ID: 1})
	require.NoError(t, err)
	_, err = conn.Write(wire.PrependStreamLength(setFrame))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	body, _, ok, err := wire.SplitStreamFrame(buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(body), 6)

	gotID := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	gotCode := wire.Reply(body[4])<<8 | wire.Reply(body[5])
	assert.Equal(t, uint32(1), gotID)
	assert.Equal(t, wire.RepOk, gotCode)
}

func newTestServer(t *testing.T) (*Server, settings.Settings) {
	t.Helper()
	s, err := settings.Parse([]string{
		"-b", "memory",
		"-t", itoa(freePort(t)), "-T", "127.0.0.1",
		"-u", itoa(freePort(t)), "-U", "127.0.0.1",
		"-l", "127.0.0.1", "-L", itoa(freePort(t)),
		"-s", itoa(freePort(t)), "-S", "127.0.0.1",
		"-c", "128",
	})
	require.NoError(t, err)

	srv, err := New(s)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	time.Sleep(50 * time.Millisecond)
	return srv, s
}

// rawHeaderFrame builds a minimal 12-byte frame (8-byte header plus a
// zero-length trailing field) with an arbitrary version nibble and command
// code, to drive decode errors that wire.Encode refuses to produce itself.
func rawHeaderFrame(version uint32, id uint32, cmd uint16) []byte {
	buf := make([]byte, 12)
	word0 := (version << 28) | (id & 0x0FFFFFFF)
	binary.BigEndian.PutUint32(buf[0:4], word0)
	binary.BigEndian.PutUint16(buf[4:6], cmd)
	return buf
}

func sendAndReadReply(t *testing.T, addr string, frame []byte) []byte {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(wire.PrependStreamLength(frame))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	body, _, ok, err := wire.SplitStreamFrame(buf[:n])
	require.NoError(t, err)
	require.True(t, ok)
	return body
}

func TestServerCountsUnknownCommandAndEchoesID(t *testing.T) {
	srv, s := newTestServer(t)
	tcpAddr := s.TCPBindAddr + ":" + itoa(s.TCPPort)

	body := sendAndReadReply(t, tcpAddr, rawHeaderFrame(wire.ProtocolVersion, 42, 0xFFFF))

	gotID := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	gotCode := wire.Reply(body[4])<<8 | wire.Reply(body[5])
	assert.Equal(t, uint32(42), gotID, "an unknown command with a clean header must still echo the request id")
	assert.Equal(t, wire.RepErr, gotCode)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), srv.counts.NetUnkReq)
}

func TestServerCountsVersionMismatch(t *testing.T) {
	srv, s := newTestServer(t)
	tcpAddr := s.TCPBindAddr + ":" + itoa(s.TCPPort)

	sendAndReadReply(t, tcpAddr, rawHeaderFrame(9, 7, uint16(wire.CmdGet)))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(1), srv.counts.NetVersionMismatch)
}

// TestServerConcurrentClientsDoNotCorruptCache hammers the cache from many
// concurrent TCP connections at once. Every SET/GET pair funnels through
// the same network goroutine (see Server.handle/enqueueNet), so this must
// complete with every value intact no matter how the client goroutines
// interleave.
func TestServerConcurrentClientsDoNotCorruptCache(t *testing.T) {
	_, s := newTestServer(t)
	tcpAddr := s.TCPBindAddr + ":" + itoa(s.TCPPort)

	const clients = 16
	var wg sync.WaitGroup
	wg.Add(clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			defer wg.Done()
			key := []byte{byte('a' + i)}
			setFrame, err := wire.Encode(wire.Request{Command: wire.CmdSet, Key: key, Value: key, Flags: wire.FlagCacheOnly, ID: uint32(i + 1)})
			require.NoError(t, err)
			body := sendAndReadReply(t, tcpAddr, setFrame)
			require.Equal(t, wire.RepOk, wire.Reply(body[4])<<8|wire.Reply(body[5]))

			getFrame, err := wire.Encode(wire.Request{Command: wire.CmdGet, Key: key, Flags: wire.FlagCacheOnly, ID: uint32(i + 1)})
			require.NoError(t, err)
			body = sendAndReadReply(t, tcpAddr, getFrame)
			require.Equal(t, wire.RepCacheHit, wire.Reply(body[4])<<8|wire.Reply(body[5]))
			assert.Equal(t, key, body[12:])
		}(i)
	}
	wg.Wait()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
