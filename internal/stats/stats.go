// Package stats holds the server's 21 counters (spec.md §3 and §6) plus the
// two runtime-mutable operator flags (passive, read-only) that §4.4 and §6
// describe as signal-toggled. Counters are plain uint64 fields updated
// without synchronization: spec.md §3 explicitly allows "lock-free,
// single-writer... counter drift under concurrent increment is
// acceptable". The network goroutine updates the cache, message and
// protocol-error counters; the database worker goroutine updates the DB*
// counters.
// Passive/read-only are atomic.Bool because a signal handler running on a
// different goroutine flips them.
package stats

import "sync/atomic"

// Counters is the ordered vector described in spec.md §6, in wire order.
type Counters struct {
	CacheGet  uint64
	CacheSet  uint64
	CacheDel  uint64
	CacheCas  uint64
	CacheIncr uint64

	DBGet  uint64
	DBSet  uint64
	DBDel  uint64
	DBCas  uint64
	DBIncr uint64

	CacheHits   uint64
	CacheMisses uint64

	DBHits   uint64
	DBMisses uint64

	MsgTipc uint64
	MsgTCP  uint64
	MsgUDP  uint64
	MsgSCTP uint64

	NetVersionMismatch uint64
	NetBrokenReq       uint64
	NetUnkReq          uint64
}

// Snapshot returns the 21 counters as a fixed array in the exact order
// spec.md §6 lists for the STATS reply payload.
func (c *Counters) Snapshot() [21]uint64 {
	return [21]uint64{
		c.CacheGet, c.CacheSet, c.CacheDel, c.CacheCas, c.CacheIncr,
		c.DBGet, c.DBSet, c.DBDel, c.DBCas, c.DBIncr,
		c.CacheHits, c.CacheMisses,
		c.DBHits, c.DBMisses,
		c.MsgTipc, c.MsgTCP, c.MsgUDP, c.MsgSCTP,
		c.NetVersionMismatch, c.NetBrokenReq, c.NetUnkReq,
	}
}

// Flags holds the two signal-toggled operator flags from spec.md §4.4 and
// §6: passive mode (suppress replies) and read-only mode (refuse durable
// writes). Both default false.
type Flags struct {
	passive  atomic.Bool
	readOnly atomic.Bool
}

func (f *Flags) Passive() bool       { return f.passive.Load() }
func (f *Flags) SetPassive(v bool)   { f.passive.Store(v) }
func (f *Flags) TogglePassive() bool { return f.flip(&f.passive) }

func (f *Flags) ReadOnly() bool { return f.readOnly.Load() }

// LatchReadOnly enables read-only mode. It is one-way: the glossary
// describes SIGUSR1 as "latched on by signal", so there is no corresponding
// unlatch — only a process restart clears it.
func (f *Flags) LatchReadOnly() { f.readOnly.Store(true) }

func (f *Flags) flip(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
