package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dolfly/nmdb/internal/wire"
)

// StreamListener serves one connection-oriented transport (stream or
// cluster stream). Framing follows spec.md §4.6: a 4-byte length prefix,
// an up-to-68KiB incomplete-message buffer per connection, and support for
// multiple frames arriving in a single read.
type StreamListener struct {
	ln     net.Listener
	kind   Kind
	handle Handler
	log    *log.Logger
	count  func()
}

// ListenStream opens a plain TCP listener at addr.
func ListenStream(addr string, kind Kind, handle Handler, count func(), logger *log.Logger) (*StreamListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &StreamListener{ln: ln, kind: kind, handle: handle, log: logger, count: count}, nil
}

// ListenStreamReusePort opens a TCP listener with SO_REUSEPORT set, so a
// second process (or a second listener here) can bind the same address.
// This is the stand-in for the "multi-homed" half of the cluster-stream
// contract in spec.md §4.6 (sequenced-packet, multi-homed semantics) — Go
// has no SCTP support, so multi-homing is approximated by letting several
// sockets answer the same address instead of one socket spanning several
// interfaces.
func ListenStreamReusePort(addr string, kind Kind, handle Handler, count func(), logger *log.Logger) (*StreamListener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &StreamListener{ln: ln, kind: kind, handle: handle, log: logger, count: count}, nil
}

// Serve accepts connections until the listener is closed, handling each on
// its own goroutine.
func (l *StreamListener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Printf("transport: accept error: %v", err)
			}
			return
		}
		go l.serveConn(conn)
	}
}

// Close stops accepting new connections.
func (l *StreamListener) Close() error {
	return l.ln.Close()
}

// LocalAddr reports the bound address.
func (l *StreamListener) LocalAddr() net.Addr {
	return l.ln.Addr()
}

func (l *StreamListener) serveConn(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	buf := make([]byte, 0, incompleteBufferSize)
	chunk := make([]byte, incompleteBufferSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			l.count()
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				l.log.Printf("transport: read error from %s: %v", peer, err)
			}
			return
		}

		for {
			body, consumed, ok, splitErr := wire.SplitStreamFrame(buf)
			if splitErr != nil {
				// Malformed length: terminal for this connection.
				return
			}
			if !ok {
				break
			}

			frameBody := make([]byte, len(body))
			copy(frameBody, body)
			buf = append(buf[:0], buf[consumed:]...)

			l.handle(frameBody, peer, func(reply []byte) {
				if reply == nil {
					return
				}
				_, _ = conn.Write(wire.PrependStreamLength(reply))
			})
		}

		if len(buf) >= incompleteBufferSize {
			// No complete frame fits in the buffer budget: malformed or
			// hostile stream, drop the connection.
			return
		}
	}
}
