// Package dispatcher implements the cache-then-queue routing policy from
// spec.md §4.4. It runs exclusively on the network goroutine: it is the
// only thing that calls into internal/cache, and it updates the cache and
// unknown-request counters in internal/stats from that goroutine (the
// worker updates the DB counters from its own). Deferred durable
// operations are handed to internal/queue for the database worker to pick
// up.
//
// Dispatcher is a single owner type fronting both a cache-like structure
// and an operation-counting stats block, with one method per verb rather
// than a generic Execute(op) switch buried in one function.
package dispatcher

import (
	"github.com/dolfly/nmdb/internal/cache"
	"github.com/dolfly/nmdb/internal/queue"
	"github.com/dolfly/nmdb/internal/stats"
	"github.com/dolfly/nmdb/internal/wire"
)

// Dispatcher applies the request policy table from spec.md §4.4.
type Dispatcher struct {
	cache  *cache.Cache
	queue  *queue.Queue
	counts *stats.Counters
	flags  *stats.Flags
}

// New builds a Dispatcher over the given cache, queue and shared counters.
func New(c *cache.Cache, q *queue.Queue, counts *stats.Counters, flags *stats.Flags) *Dispatcher {
	return &Dispatcher{cache: c, queue: q, counts: counts, flags: flags}
}

// Outcome is what the dispatcher decided to do with one request: reply now,
// with the given frame, or defer to the worker (frame is nil).
type Outcome struct {
	Frame    []byte
	Deferred bool
}

// reply builds an Outcome unless passive mode suppresses it, per spec.md
// §4.4 ("the dispatcher suppresses all outbound replies... state mutations
// still occur").
func (d *Dispatcher) reply(frame []byte) Outcome {
	if d.flags.Passive() {
		return Outcome{}
	}
	return Outcome{Frame: frame}
}

func errReply(id uint32, code wire.ErrCode) []byte {
	return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepErr, ErrCode: code, IsErr: true})
}

// Dispatch routes one decoded request. target is attached to any entry
// enqueued for the database worker. It returns the immediate reply frame
// (nil if the operation was deferred, or if passive mode suppressed it).
func (d *Dispatcher) Dispatch(req wire.Request, target queue.ReplyTarget) Outcome {
	switch req.Command {
	case wire.CmdGet:
		return d.dispatchGet(req, target)
	case wire.CmdSet:
		return d.dispatchSet(req, target)
	case wire.CmdDel:
		return d.dispatchDel(req, target)
	case wire.CmdCas:
		return d.dispatchCas(req, target)
	case wire.CmdIncr:
		return d.dispatchIncr(req, target)
	case wire.CmdStats:
		return d.dispatchStats(req)
	case wire.CmdFirstkey, wire.CmdNextkey:
		// Iteration is satisfied entirely by the backend and has no cache
		// analogue; the dispatcher always defers it to the worker.
		d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Op: iterOp(req.Command), ID: req.ID})
		return Outcome{Deferred: true}
	default:
		d.counts.NetUnkReq++
		return d.reply(errReply(req.ID, wire.ErrUnkreq))
	}
}

func iterOp(cmd wire.Command) queue.Op {
	if cmd == wire.CmdFirstkey {
		return queue.OpFirstKey
	}
	return queue.OpNextKey
}

func (d *Dispatcher) dispatchGet(req wire.Request, target queue.ReplyTarget) Outcome {
	d.counts.CacheGet++
	value, found := d.cache.Get(req.Key)

	if found {
		d.counts.CacheHits++
		return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepCacheHit, Value: value}))
	}
	d.counts.CacheMisses++

	if req.Flags.CacheOnly() {
		return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepCacheMiss}))
	}

	// Cache miss on a durable GET: defer to the worker, which replies
	// OK/value or NOTIN authoritatively from the backend.
	d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Op: queue.OpGet, ID: req.ID})
	return Outcome{Deferred: true}
}

func (d *Dispatcher) dispatchSet(req wire.Request, target queue.ReplyTarget) Outcome {
	d.counts.CacheSet++
	d.cache.Set(req.Key, req.Value)

	if req.Flags.CacheOnly() {
		return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepOk}))
	}

	if d.flags.ReadOnly() {
		return d.reply(errReply(req.ID, wire.ErrReadOnl))
	}

	sync := req.Flags.Sync()
	d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Value: req.Value, Op: queue.OpSet, ID: req.ID, Sync: sync})

	if sync {
		// The worker replies OK/DB-ERR once the backend write lands.
		return Outcome{Deferred: true}
	}
	return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepOk}))
}

func (d *Dispatcher) dispatchDel(req wire.Request, target queue.ReplyTarget) Outcome {
	d.counts.CacheDel++
	status := d.cache.Del(req.Key)

	if req.Flags.CacheOnly() {
		return d.reply(cacheDelReply(req.ID, status))
	}

	if d.flags.ReadOnly() {
		return d.reply(errReply(req.ID, wire.ErrReadOnl))
	}

	sync := req.Flags.Sync()
	d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Op: queue.OpDel, ID: req.ID, Sync: sync})

	if sync {
		return Outcome{Deferred: true}
	}
	return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepOk}))
}

func cacheDelReply(id uint32, status cache.Status) []byte {
	if status == cache.StatusOK {
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepOk})
	}
	return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepNotin})
}

func (d *Dispatcher) dispatchCas(req wire.Request, target queue.ReplyTarget) Outcome {
	d.counts.CacheCas++
	status := d.cache.Cas(req.Key, req.Value, req.NewVal)

	if req.Flags.CacheOnly() {
		return d.reply(casStatusReply(req.ID, status))
	}

	if status == cache.StatusNoMatch {
		// Short-circuit without enqueuing, per spec.md §4.4's coherence
		// rationale: a rare false negative is traded for throughput.
		return d.reply(wire.EncodeReply(wire.ReplyFrame{ID: req.ID, Code: wire.RepNomatch}))
	}

	if d.flags.ReadOnly() {
		return d.reply(errReply(req.ID, wire.ErrReadOnl))
	}

	d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Value: req.Value, NewVal: req.NewVal, Op: queue.OpCas, ID: req.ID})
	return Outcome{Deferred: true}
}

func casStatusReply(id uint32, status cache.Status) []byte {
	switch status {
	case cache.StatusOK:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepOk})
	case cache.StatusNoMatch:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepNomatch})
	default:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepNotin})
	}
}

func (d *Dispatcher) dispatchIncr(req wire.Request, target queue.ReplyTarget) Outcome {
	d.counts.CacheIncr++
	newValue, status := d.cache.Incr(req.Key, req.Delta)

	if req.Flags.CacheOnly() {
		return d.reply(incrStatusReply(req.ID, newValue, status))
	}

	if d.flags.ReadOnly() {
		return d.reply(errReply(req.ID, wire.ErrReadOnl))
	}

	// Best-effort cache incr above; the worker authoritatively recomputes
	// against the backend and is the one whose reply clients should trust.
	d.queue.Put(&queue.Entry{Reply: target, Key: req.Key, Delta: req.Delta, Op: queue.OpIncr, ID: req.ID})
	return Outcome{Deferred: true}
}

func incrStatusReply(id uint32, newValue int64, status cache.Status) []byte {
	switch status {
	case cache.StatusOK:
		return wire.EncodeIncrReply(id, newValue)
	case cache.StatusNotNumeric:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepNomatch})
	default:
		return wire.EncodeReply(wire.ReplyFrame{ID: id, Code: wire.RepNotin})
	}
}

func (d *Dispatcher) dispatchStats(req wire.Request) Outcome {
	snap := d.counts.Snapshot()
	return d.reply(wire.EncodeStats(req.ID, snap))
}
