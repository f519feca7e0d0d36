package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Request is one decoded request frame, independent of the transport it
// arrived on.
type Request struct {
	Key     []byte
	Value   []byte
	NewVal  []byte
	Delta   int64
	ID      uint32
	Command Command
	Flags   Flags
}

// Errors returned by Decode. Callers map ErrVersion to ERR/VER,
// ErrUnknownCmd to ERR/UNKREQ and the rest to ERR/BROKEN replies.
var (
	ErrShortFrame   = errors.New("wire: frame shorter than header")
	ErrFrameTooBig  = errors.New("wire: frame exceeds maximum size")
	ErrFieldTooBig  = errors.New("wire: field size exceeds remaining payload")
	ErrVersion      = errors.New("wire: protocol version mismatch")
	ErrUnknownCmd   = errors.New("wire: unknown command")
	ErrTruncated    = errors.New("wire: payload truncated")
)

const headerSize = 8

// Decode parses a complete datagram-framed message (no length prefix; the
// caller strips the stream transport's 4-byte prefix before calling this).
func Decode(b []byte) (Request, error) {
	var req Request

	// The id occupies the low 28 bits of the first word regardless of
	// whether the version nibble or command are valid, so it is extracted
	// before any of the validity checks below — callers building an error
	// reply still get the request's real id to echo back.
	if len(b) >= 4 {
		req.ID = binary.BigEndian.Uint32(b[0:4]) & 0x0FFFFFFF
	}

	if len(b) < headerSize {
		return req, ErrShortFrame
	}
	if len(b) > MaxMessageSize {
		return req, ErrFrameTooBig
	}

	word0 := binary.BigEndian.Uint32(b[0:4])
	ver := word0 >> 28
	if ver != ProtocolVersion {
		return req, ErrVersion
	}
	req.Command = Command(binary.BigEndian.Uint16(b[4:6]))
	req.Flags = Flags(binary.BigEndian.Uint16(b[6:8]))

	payload := b[headerSize:]

	switch req.Command {
	case CmdGet, CmdDel, CmdFirstkey:
		key, _, err := readField(payload)
		if err != nil {
			return req, err
		}
		req.Key = key

	case CmdNextkey:
		// NEXTKEY carries the previous cursor key, same shape as GET/DEL.
		key, _, err := readField(payload)
		if err != nil {
			return req, err
		}
		req.Key = key

	case CmdSet:
		key, rest, err := readField(payload)
		if err != nil {
			return req, err
		}
		val, _, err := readField(rest)
		if err != nil {
			return req, err
		}
		req.Key, req.Value = key, val

	case CmdCas:
		key, rest, err := readField(payload)
		if err != nil {
			return req, err
		}
		oldv, rest, err := readField(rest)
		if err != nil {
			return req, err
		}
		newv, _, err := readField(rest)
		if err != nil {
			return req, err
		}
		req.Key, req.Value, req.NewVal = key, oldv, newv

	case CmdIncr:
		key, rest, err := readField(payload)
		if err != nil {
			return req, err
		}
		if len(rest) < 8 {
			return req, ErrTruncated
		}
		req.Key = key
		req.Delta = int64(binary.BigEndian.Uint64(rest[:8]))

	case CmdStats:
		// no payload

	default:
		return req, ErrUnknownCmd
	}

	return req, nil
}

// readField reads a 4-byte network-order size prefix followed by that many
// bytes, returning the field and the remaining buffer.
func readField(b []byte) (field []byte, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, ErrTruncated
	}
	size := binary.BigEndian.Uint32(b[:4])
	if size > MaxFieldSize {
		return nil, nil, ErrFieldTooBig
	}
	b = b[4:]
	if uint64(size) > uint64(len(b)) {
		return nil, nil, ErrFieldTooBig
	}
	field = make([]byte, size)
	copy(field, b[:size])
	return field, b[size:], nil
}

// Encode serializes a request back to wire form. It exists for tests that
// assert the round-trip property in spec.md §8.6 and for the loopback
// clients in the server and transport tests.
func Encode(req Request) ([]byte, error) {
	var buf []byte

	word0 := make([]byte, 4)
	if req.ID > 0x0FFFFFFF {
		return nil, fmt.Errorf("wire: id %d exceeds 28 bits", req.ID)
	}
	binary.BigEndian.PutUint32(word0, (uint32(ProtocolVersion)<<28)|req.ID)

	header := make([]byte, headerSize)
	copy(header[0:4], word0)
	binary.BigEndian.PutUint16(header[4:6], uint16(req.Command))
	binary.BigEndian.PutUint16(header[6:8], uint16(req.Flags))
	buf = append(buf, header...)

	switch req.Command {
	case CmdGet, CmdDel, CmdFirstkey, CmdNextkey:
		buf = appendField(buf, req.Key)
	case CmdSet:
		buf = appendField(buf, req.Key)
		buf = appendField(buf, req.Value)
	case CmdCas:
		buf = appendField(buf, req.Key)
		buf = appendField(buf, req.Value)
		buf = appendField(buf, req.NewVal)
	case CmdIncr:
		buf = appendField(buf, req.Key)
		delta := make([]byte, 8)
		binary.BigEndian.PutUint64(delta, uint64(req.Delta))
		buf = append(buf, delta...)
	case CmdStats:
		// no payload
	default:
		return nil, ErrUnknownCmd
	}

	if len(buf) > MaxMessageSize {
		return nil, ErrFrameTooBig
	}
	return buf, nil
}

func appendField(buf, field []byte) []byte {
	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(field)))
	buf = append(buf, size...)
	buf = append(buf, field...)
	return buf
}

// ReplyFrame is one encoded reply, ready to be written to a socket (datagram
// transports write it as-is; the stream transport prepends a 4-byte length).
type ReplyFrame struct {
	Value   []byte
	ID      uint32
	Code    Reply
	ErrCode ErrCode
	IsErr   bool
}

// EncodeReply serializes a reply frame. A non-nil Value (GET and
// FIRSTKEY/NEXTKEY replies) is appended as a size-prefixed field; INCR and
// STATS replies are built separately by EncodeIncrReply and EncodeStats.
func EncodeReply(r ReplyFrame) []byte {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], r.ID)
	binary.BigEndian.PutUint16(header[4:6], uint16(r.Code))
	// bytes[6:8] reserved, left zero.

	if r.IsErr {
		sub := make([]byte, 4)
		binary.BigEndian.PutUint32(sub, uint32(r.ErrCode))
		return append(header, sub...)
	}

	if r.Value == nil {
		return header
	}
	return appendField(header, r.Value)
}

// EncodeIncrReply builds the OK/INCR reply payload: a 4-byte size word
// (always 8) followed by the signed 64-bit new value.
func EncodeIncrReply(id uint32, newValue int64) []byte {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], id)
	binary.BigEndian.PutUint16(header[4:6], uint16(RepOk))

	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, 8)
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(newValue))

	out := append(header, size...)
	out = append(out, val...)
	return out
}

// StatsCounterCount is the number of u64 counters in a STATS reply.
const StatsCounterCount = 21

// EncodeStats builds the OK/STATS reply payload: 21 big-endian u64 counters
// in the order listed in spec.md §6.
func EncodeStats(id uint32, counters [StatsCounterCount]uint64) []byte {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:4], id)
	binary.BigEndian.PutUint16(header[4:6], uint16(RepOk))

	out := make([]byte, headerSize+StatsCounterCount*8)
	copy(out, header)
	for i, c := range counters {
		binary.BigEndian.PutUint64(out[headerSize+i*8:], c)
	}
	return out
}
