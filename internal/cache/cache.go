// Package cache implements the bounded, per-bucket LRU hash table described
// in spec.md §3–§4.1: a fixed hash_buckets-sized table of chainLen-slot
// buckets, looked up by MurmurHash2, with in-place eviction on insert into a
// full bucket.
//
// Cache is not internally synchronized. Per spec.md §5, the network
// goroutine owns the cache exclusively — every call in this package must
// come from that single goroutine.
package cache

import "fmt"

// Result codes shared by Set/Cas/Incr. StatusOutOfMemory is part of the
// documented contract (spec.md §4.1's eviction-reuse failure edge case) but
// is effectively unreachable under Go's allocator, which panics rather than
// returning an error on exhaustion; it is retained so callers that switch
// on Status exhaustively compile against the full documented contract.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusNoMatch
	StatusOutOfMemory
	StatusNotNumeric
)

// Cache is the bounded hash table. Capacity is exactly
// hashBuckets*chainLen, never enforced globally — only per bucket, per
// spec.md §3.
type Cache struct {
	table       []bucket
	hashBuckets int
}

// New creates a cache sized for approximately maxEntries total entries.
// Actual capacity is floor(maxEntries/chainLen)*chainLen, but never less
// than one bucket (chainLen entries).
func New(maxEntries int) *Cache {
	hashBuckets := maxEntries / chainLen
	if hashBuckets < 1 {
		hashBuckets = 1
	}
	table := make([]bucket, hashBuckets)
	for i := range table {
		table[i] = newBucket()
	}
	return &Cache{table: table, hashBuckets: hashBuckets}
}

// Capacity returns the exact entry capacity of the cache.
func (c *Cache) Capacity() int {
	return c.hashBuckets * chainLen
}

func (c *Cache) bucketFor(key []byte) *bucket {
	h := murmur2(key) % uint32(c.hashBuckets)
	return &c.table[h]
}

// Get looks a key up without promoting it — reads never change LRU order,
// per spec.md §4.1.
func (c *Cache) Get(key []byte) (value []byte, found bool) {
	b := c.bucketFor(key)
	idx := b.find(key)
	if idx == noSlot {
		return nil, false
	}
	return b.slots[idx].value, true
}

// Set stores key/value, evicting the bucket's LRU entry in place if the
// bucket is full and key is new. Returns StatusOK or StatusOutOfMemory.
func (c *Cache) Set(key, value []byte) Status {
	b := c.bucketFor(key)

	if idx := b.find(key); idx != noSlot {
		s := &b.slots[idx]
		s.value = append(s.value[:0], value...)
		b.promote(idx)
		return StatusOK
	}

	idx := b.firstFree()
	if idx == noSlot {
		// Bucket full: evict the LRU entry in place and reuse its slot.
		idx = b.evictTail()
	}
	b.occupy(idx, key, value)
	return StatusOK
}

// Del removes key. Returns StatusOK on hit, StatusNotFound on miss.
func (c *Cache) Del(key []byte) Status {
	b := c.bucketFor(key)
	idx := b.find(key)
	if idx == noSlot {
		return StatusNotFound
	}
	b.remove(idx)
	return StatusOK
}

// Cas performs a compare-and-swap. It never promotes the entry, per
// spec.md §4.1.
func (c *Cache) Cas(key, expectedOld, newValue []byte) Status {
	b := c.bucketFor(key)
	idx := b.find(key)
	if idx == noSlot {
		return StatusNotFound
	}
	s := &b.slots[idx]
	if !bytesEqual(s.value, expectedOld) {
		return StatusNoMatch
	}
	s.value = append(s.value[:0], newValue...)
	return StatusOK
}

// incrBufferWidth is the padded field width from spec.md §4.1's example
// (23 decimal characters, right-justified, plus a NUL terminator).
const incrBufferWidth = 23

// Incr atomically increments a decimal-ascii, null-terminated value. It
// never promotes the entry.
func (c *Cache) Incr(key []byte, delta int64) (newValue int64, status Status) {
	b := c.bucketFor(key)
	idx := b.find(key)
	if idx == noSlot {
		return 0, StatusNotFound
	}
	s := &b.slots[idx]

	n, ok := parseDecimalCString(s.value)
	if !ok {
		return 0, StatusNotNumeric
	}

	n += delta // two's-complement wrap, matching the original's signed add.
	formatted := fmt.Sprintf("%*d", incrBufferWidth, n)
	buf := make([]byte, incrBufferWidth+1)
	copy(buf, formatted)
	buf[incrBufferWidth] = 0

	s.value = buf
	return n, StatusOK
}

// parseDecimalCString mimics strtoll's tolerant parsing: it requires a NUL
// terminator somewhere in v (spec.md §4.1: "the terminator is required...
// trailing garbage is tolerated"), skips leading whitespace (such as the
// padding Incr writes), and stops consuming digits at the first non-digit
// byte before that terminator.
func parseDecimalCString(v []byte) (int64, bool) {
	nul := -1
	for i, b := range v {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul == -1 {
		return 0, false
	}
	s := v[:nul]

	i := 0
	for i < len(s) && (s[i] == ' ' || (s[i] >= '\t' && s[i] <= '\r')) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	var n int64
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	if i == start {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
