// Package wire implements the nmdb binary request/reply protocol: the
// 8-byte header (4-bit version, 28-bit id, 16-bit command, 16-bit flags),
// per-command payload encodings, and per-command reply encodings.
//
// Framing is transport-dependent (datagram transports hand the codec a
// complete message starting at byte 0; the stream transport prefixes each
// message with a 4-byte inclusive length) but the header and payload shapes
// this package parses are identical across all four transports. See
// internal/transport for the framing glue.
package wire
