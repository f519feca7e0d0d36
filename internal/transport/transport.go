// Package transport implements the four listeners from spec.md §4.6, each
// stripping its own framing discipline and handing the caller a raw,
// complete frame. Decoding and dispatch are deliberately left to the
// caller's Handler rather than done here: every listener runs its own
// accept/read goroutines, so if this package decoded and dispatched
// on those goroutines directly, concurrent connections would call into
// the single-owner cache and stats counters from multiple goroutines at
// once. internal/server's Handler instead funnels every call onto one
// goroutine before touching either (spec.md §5).
//
// Go has no TIPC or SCTP sockets in the standard library. PacketListener
// and StreamListener below stand in for the four transport flavours using
// two real UDP sockets and two real TCP listeners — documented as
// protocol stand-ins, not TIPC/SCTP compatibility. The second stream
// listener binds with SO_REUSEPORT to at least exercise the "multi-homed"
// half of the contract (multiple sockets answering the same logical
// service).
package transport

import (
	"github.com/dolfly/nmdb/internal/wire"
)

// MaxDatagramSize is the largest UDP/TIPC-stand-in datagram this package
// will attempt to read, matching spec.md §4.3's message size ceiling.
const MaxDatagramSize = wire.MaxMessageSize

// incompleteBufferSize is the per-connection read buffer described in
// spec.md §4.6 ("an incomplete-message buffer (up to 68 KiB)").
const incompleteBufferSize = 68 * 1024

// Handler processes one raw, complete frame (already stripped of whatever
// framing its transport uses) and may call respond at most once with the
// reply to send back over that same transport.
type Handler func(frame []byte, peer string, respond func(frame []byte))

// Kind names which of the four listener flavours a given socket is
// standing in for. Listeners only store it; MsgTipc/MsgTCP/MsgUDP/MsgSCTP
// counting is done by the count callback each listener is given.
type Kind int

const (
	KindClusterDatagram Kind = iota
	KindDatagram
	KindStream
	KindClusterStream
)
