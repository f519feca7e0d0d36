// Package queue implements the work queue that hands deferred database
// operations from the network goroutine to the database worker goroutine,
// per spec.md §4.2 and §5. It is the only channel between the two; the
// dispatcher is the sole producer and the worker is the sole consumer.
package queue

import (
	"sync"
	"time"
)

// ReplyTarget captures enough of the originating connection for the
// worker to send a reply after it has applied the operation, without the
// worker needing to know which transport the request arrived on — a plain
// struct in place of the originating C implementation's per-request
// function-pointer callback, per spec.md §9's redesign note.
type ReplyTarget struct {
	// Respond is called by the worker at most once, with the encoded reply
	// frame (no length prefix; the stream transport's Respond adds it). It
	// is not called for async SET/DEL entries or while passive mode is on.
	// Implementations must be safe to call from the worker goroutine.
	Respond func(frame []byte)
	// Peer is a human-readable description of the originating connection,
	// used only for logging.
	Peer string
}

// Entry is one deferred database operation. It carries a deep copy of the
// key/value/newvalue byte arrays so the dispatcher's buffers can be reused
// or freed immediately after enqueuing, per spec.md §3.
type Entry struct {
	Reply  ReplyTarget
	Key    []byte
	Value  []byte
	NewVal []byte
	Op     Op
	Delta  int64
	ID     uint32
	Sync   bool
}

// Op mirrors the wire command this entry was derived from.
type Op int

const (
	OpGet Op = iota
	OpSet
	OpDel
	OpCas
	OpIncr
	OpFirstKey
	OpNextKey
)

// Queue is an unbounded FIFO guarded by a mutex and condition variable,
// matching the original's pthread mutex/cond pair (nmdb/queue.c) rather
// than a buffered Go channel, so that Wait can block on an absolute
// deadline the way spec.md §4.2 requires ("condition-wait deadlines are
// absolute... so a drifted clock does not cause oversleep").
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []*Entry
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends an entry and wakes one waiter.
func (q *Queue) Put(e *Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.cond.Signal()
	q.mu.Unlock()
}

// Get pops the oldest entry, or returns (nil, false) if the queue is
// empty.
func (q *Queue) Get() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// IsEmpty reports whether the queue currently holds no entries.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// Len reports the current queue depth, for STATS-adjacent diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// WaitUntilNonEmpty blocks until the queue has at least one entry or until
// the absolute deadline passes, whichever comes first. It returns true if
// the queue is non-empty when it returns.
//
// sync.Cond has no built-in timed wait, so the deadline is enforced by a
// background goroutine that broadcasts once the timer fires — the Go
// equivalent of pthread_cond_timedwait's absolute-deadline contract.
func (q *Queue) WaitUntilNonEmpty(deadline time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) > 0 {
		return true
	}

	timer := time.AfterFunc(time.Until(deadline), func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	for len(q.entries) == 0 && time.Now().Before(deadline) {
		q.cond.Wait()
	}
	return len(q.entries) > 0
}
