package wire

import "encoding/binary"

// LengthPrefixSize is the size of the stream transport's length prefix.
const LengthPrefixSize = 4

// SplitStreamFrame inspects a stream transport's read buffer and, if it
// contains at least one complete length-prefixed message, returns the frame
// body (the bytes the codec should decode, i.e. everything after the
// 4-byte prefix) and the number of bytes consumed from buf (prefix + body).
// ok is false if buf does not yet hold a complete message.
//
// The declared length is the prefix's own value and is inclusive of the
// prefix itself, per spec.md §4.3 ("length field inclusive").
func SplitStreamFrame(buf []byte) (body []byte, consumed int, ok bool, err error) {
	if len(buf) < LengthPrefixSize {
		return nil, 0, false, nil
	}
	total := binary.BigEndian.Uint32(buf[:LengthPrefixSize])
	if total < MinMessageSize || total > MaxMessageSize {
		return nil, 0, false, ErrFrameTooBig
	}
	if uint64(len(buf)) < uint64(total) {
		return nil, 0, false, nil
	}
	return buf[LengthPrefixSize:total], int(total), true, nil
}

// PrependStreamLength wraps a datagram-shaped frame (header+payload, as
// produced by Encode/EncodeReply/EncodeStats) with the stream transport's
// 4-byte inclusive length prefix.
func PrependStreamLength(frame []byte) []byte {
	total := len(frame) + LengthPrefixSize
	out := make([]byte, LengthPrefixSize, total)
	binary.BigEndian.PutUint32(out, uint32(total))
	return append(out, frame...)
}
