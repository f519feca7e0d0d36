package cache

// chainLen is CHAINLEN from spec.md §3: the fixed per-bucket slot count.
const chainLen = 4

// freeKeyLen is the sentinel marking a slot unused, per spec.md §3
// ("a slot is free when its key length is the sentinel 'unused'").
const freeKeyLen = -1

const noSlot = -1

// slot is one fixed-capacity cache entry inside a bucket: a key/value pair
// plus its position in the bucket's MRU/LRU list, expressed as array
// indices rather than pointers. Modeled this way — an array of slots with
// integer prev/next links, per spec.md §9's redesign note — to avoid the
// pointer aliasing a hand-rolled doubly-linked list would introduce
// between the bucket array and its list nodes.
type slot struct {
	key    []byte
	value  []byte
	keyLen int
	prev   int
	next   int
}

// bucket is one hash-table chain: up to chainLen slots plus a doubly-linked
// MRU/LRU order over the used ones. head is MRU, tail is LRU.
type bucket struct {
	slots [chainLen]slot
	head  int
	tail  int
	used  int
}

func newBucket() bucket {
	b := bucket{head: noSlot, tail: noSlot}
	for i := range b.slots {
		b.slots[i].keyLen = freeKeyLen
	}
	return b
}

// find returns the slot index holding key, or noSlot.
func (b *bucket) find(key []byte) int {
	for i := range b.slots {
		s := &b.slots[i]
		if s.keyLen == freeKeyLen {
			continue
		}
		if s.keyLen == len(key) && bytesEqual(s.key, key) {
			return i
		}
	}
	return noSlot
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// firstFree returns the index of an unused slot, or noSlot if the bucket is
// full.
func (b *bucket) firstFree() int {
	if b.used >= chainLen {
		return noSlot
	}
	for i := range b.slots {
		if b.slots[i].keyLen == freeKeyLen {
			return i
		}
	}
	return noSlot
}

// unlink removes idx from the MRU/LRU list without touching its payload.
func (b *bucket) unlink(idx int) {
	s := &b.slots[idx]
	if s.prev != noSlot {
		b.slots[s.prev].next = s.next
	} else {
		b.head = s.next
	}
	if s.next != noSlot {
		b.slots[s.next].prev = s.prev
	} else {
		b.tail = s.prev
	}
	s.prev, s.next = noSlot, noSlot
}

// pushFront inserts idx at the MRU end of the list.
func (b *bucket) pushFront(idx int) {
	s := &b.slots[idx]
	s.prev = noSlot
	s.next = b.head
	if b.head != noSlot {
		b.slots[b.head].prev = idx
	}
	b.head = idx
	if b.tail == noSlot {
		b.tail = idx
	}
}

// promote moves idx to the MRU end if it isn't already there.
func (b *bucket) promote(idx int) {
	if b.head == idx {
		return
	}
	b.unlink(idx)
	b.pushFront(idx)
}

// evictTail frees the LRU slot, returning its index for reuse.
func (b *bucket) evictTail() int {
	idx := b.tail
	b.unlink(idx)
	b.slots[idx].keyLen = freeKeyLen
	b.slots[idx].key = nil
	b.slots[idx].value = nil
	b.used--
	return idx
}

// occupy fills slot idx with key/value and places it at the MRU end. The
// slot must already be free.
func (b *bucket) occupy(idx int, key, value []byte) {
	s := &b.slots[idx]
	s.key = append([]byte(nil), key...)
	s.value = append([]byte(nil), value...)
	s.keyLen = len(key)
	b.used++
	b.pushFront(idx)
}

// remove deletes the slot at idx, resetting head/tail if it was the only
// entry — the bucket-empties edge case named in spec.md §4.1.
func (b *bucket) remove(idx int) {
	b.unlink(idx)
	s := &b.slots[idx]
	s.keyLen = freeKeyLen
	s.key = nil
	s.value = nil
	b.used--
	if b.used == 0 {
		b.head, b.tail = noSlot, noSlot
	}
}
