// Package worker implements the database worker goroutine from spec.md
// §4.5: the sole writer to the backend, draining internal/queue and
// replying to clients directly once an operation has actually landed in
// the store.
//
// Start/Stop form a context-cancelable pair guarded by a sync.WaitGroup,
// polling the work queue's absolute deadline wait instead of a fixed
// ticker interval.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dolfly/nmdb/internal/backend"
	"github.com/dolfly/nmdb/internal/queue"
	"github.com/dolfly/nmdb/internal/stats"
	"github.com/dolfly/nmdb/internal/wire"
)

// pollInterval is the queue's absolute-deadline tick, per spec.md §4.2
// ("the worker uses a 1-second tick").
const pollInterval = time.Second

// Worker drains the queue and applies operations to a single backend.Store.
// It is the only goroutine that touches the backend, so no backend-side
// locking is required (spec.md §4.5, §5).
type Worker struct {
	store  backend.Store
	queue  *queue.Queue
	counts *stats.Counters
	flags  *stats.Flags
	log    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Worker over store and q. flags is consulted at reply time
// so a SIGUSR2 toggle mid-flight is honored for every reply still in
// flight, not just ones enqueued after the toggle. logger receives one
// line per dropped unknown opcode; it may be log.Default().
func New(store backend.Store, q *queue.Queue, counts *stats.Counters, flags *stats.Flags, logger *log.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{store: store, queue: q, counts: counts, flags: flags, log: logger, ctx: ctx, cancel: cancel}
	w.wg.Add(1)
	return w
}

// Start runs the drain loop in the current goroutine until Stop is called.
// Callers typically invoke it with `go w.Start()`.
func (w *Worker) Start() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		default:
		}

		deadline := time.Now().Add(pollInterval)
		if !w.queue.WaitUntilNonEmpty(deadline) {
			continue
		}
		w.stepOnce()
	}
}

// drain applies every remaining queued entry before returning, per
// spec.md §4.5's shutdown contract ("the worker drains the queue then
// returns").
func (w *Worker) drain() {
	for {
		entry, ok := w.queue.Get()
		if !ok {
			return
		}
		w.apply(entry)
	}
}

func (w *Worker) stepOnce() {
	entry, ok := w.queue.Get()
	if !ok {
		return
	}
	w.apply(entry)
}

// Stop signals the loop to drain and exit, then blocks until it has.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) apply(e *queue.Entry) {
	switch e.Op {
	case queue.OpSet:
		w.applySet(e)
	case queue.OpGet:
		w.applyGet(e)
	case queue.OpDel:
		w.applyDel(e)
	case queue.OpCas:
		w.applyCas(e)
	case queue.OpIncr:
		w.applyIncr(e)
	case queue.OpFirstKey:
		w.applyFirstKey(e)
	case queue.OpNextKey:
		w.applyNextKey(e)
	default:
		w.log.Printf("worker: dropping entry with unknown op %d", e.Op)
	}
}

func (w *Worker) applySet(e *queue.Entry) {
	w.counts.DBSet++
	err := w.store.Set(e.Key, e.Value)
	if !e.Sync {
		return
	}
	if err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk}))
}

func (w *Worker) applyGet(e *queue.Entry) {
	w.counts.DBGet++
	value, err := w.store.Get(e.Key)
	if err == backend.ErrNotFound {
		w.counts.DBMisses++
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNotin}))
		return
	}
	if err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	w.counts.DBHits++
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk, Value: value}))
}

func (w *Worker) applyDel(e *queue.Entry) {
	w.counts.DBDel++
	err := w.store.Del(e.Key)
	if !e.Sync {
		return
	}
	if err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk}))
}

func (w *Worker) applyCas(e *queue.Entry) {
	w.counts.DBCas++
	current, err := w.store.Get(e.Key)
	if err == backend.ErrNotFound {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNotin}))
		return
	}
	if err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	if !bytesEqual(current, e.Value) {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNomatch}))
		return
	}
	if err := w.store.Set(e.Key, e.NewVal); err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk}))
}

func (w *Worker) applyIncr(e *queue.Entry) {
	w.counts.DBIncr++
	current, err := w.store.Get(e.Key)
	if err == backend.ErrNotFound {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNotin}))
		return
	}
	if err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}

	n, ok := parseDecimalCString(current)
	if !ok {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNomatch}))
		return
	}
	n += e.Delta
	formatted := formatIncrValue(n)

	if err := w.store.Set(e.Key, formatted); err != nil {
		w.respond(e, errFrame(e.ID, wire.ErrDB))
		return
	}
	w.respond(e, wire.EncodeIncrReply(e.ID, n))
}

func (w *Worker) applyFirstKey(e *queue.Entry) {
	iter, ok := w.store.(backend.Iterable)
	if !ok {
		w.respond(e, errFrame(e.ID, wire.ErrUnkreq))
		return
	}
	key, ok := iter.FirstKey()
	if !ok {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNotin}))
		return
	}
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk, Value: key}))
}

func (w *Worker) applyNextKey(e *queue.Entry) {
	iter, ok := w.store.(backend.Iterable)
	if !ok {
		w.respond(e, errFrame(e.ID, wire.ErrUnkreq))
		return
	}
	key, ok := iter.NextKey(e.Key)
	if !ok {
		w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepNotin}))
		return
	}
	w.respond(e, wire.EncodeReply(wire.ReplyFrame{ID: e.ID, Code: wire.RepOk, Value: key}))
}

// respond checks passive mode at the moment of reply, not at enqueue time:
// the flag can flip while an entry sits in the queue, and spec.md §4.4
// requires the reply actually sent (or not) to reflect the mode in effect
// when it goes out.
func (w *Worker) respond(e *queue.Entry, frame []byte) {
	if w.flags.Passive() {
		return
	}
	if e.Reply.Respond != nil {
		e.Reply.Respond(frame)
	}
}

func errFrame(id uint32, code wire.ErrCode) []byte {
	return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepErr, ErrCode: code, IsErr: true})
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

// parseDecimalCString mirrors internal/cache's tolerant strtoll-style
// parser, since the worker independently validates the backend's stored
// value the same way the cache validates its own (spec.md §4.5).
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

const incrBufferWidth = 23

func formatIncrValue(n int64) []byte {
	formatted := fmt.Sprintf("%*d", incrBufferWidth, n)
	buf := make([]byte, incrBufferWidth+1)
	copy(buf, formatted)
	buf[incrBufferWidth] = 0
	return buf
}
