package transport

import (
	"errors"
	"log"
	"net"
)

// PacketListener serves one datagram-shaped transport (cluster datagram or
// plain UDP). Each complete datagram is one complete message, per spec.md
// §4.3 ("the codec starts from byte 0 of the payload") — there is no
// reassembly to do.
type PacketListener struct {
	conn   *net.UDPConn
	kind   Kind
	handle Handler
	log    *log.Logger
	count  func()
}

// ListenPacket opens a UDP socket at addr. kind records which flavour the
// socket stands in for; count is called once for every received datagram
// and decides which counter (MsgTipc or MsgUDP) is incremented.
func ListenPacket(addr string, kind Kind, handle Handler, count func(), logger *log.Logger) (*PacketListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &PacketListener{conn: conn, kind: kind, handle: handle, log: logger, count: count}, nil
}

// Serve reads datagrams until the socket is closed.
func (l *PacketListener) Serve() {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, peer, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Printf("transport: udp read error: %v", err)
			}
			return
		}
		l.count()

		frame := make([]byte, n)
		copy(frame, buf[:n])
		peerAddr := peer

		l.handle(frame, peerAddr.String(), func(reply []byte) {
			if reply == nil {
				return
			}
			_, _ = l.conn.WriteToUDP(reply, peerAddr)
		})
	}
}

// Close stops the listener.
func (l *PacketListener) Close() error {
	return l.conn.Close()
}

// LocalAddr reports the bound address, mostly useful in tests that bind to
// port 0.
func (l *PacketListener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}
