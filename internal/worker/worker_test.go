package worker

import (
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolfly/nmdb/internal/backend"
	"github.com/dolfly/nmdb/internal/queue"
	"github.com/dolfly/nmdb/internal/stats"
	"github.com/dolfly/nmdb/internal/wire"
)

func collectReply() (queue.ReplyTarget, func() []byte) {
	var mu sync.Mutex
	var frame []byte
	got := make(chan struct{}, 1)
	target := queue.ReplyTarget{
		Peer: "test",
		Respond: func(f []byte) {
			mu.Lock()
			frame = append([]byte(nil), f...)
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		},
	}
	wait := func() []byte {
		select {
		case <-got:
		case <-time.After(time.Second):
		}
		mu.Lock()
		defer mu.Unlock()
		return frame
	}
	return target, wait
}

func TestWorkerAppliesSetAndReplies(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("x"), Value: []byte("1"), Op: queue.OpSet, ID: 1, Sync: true})

	frame := wait()
	require.NotNil(t, frame)

	v, err := store.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestWorkerAsyncSetDoesNotReply(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("x"), Value: []byte("1"), Op: queue.OpSet, ID: 1})

	frame := wait()
	assert.Nil(t, frame)

	// give the worker time to actually apply it even without a reply
	time.Sleep(50 * time.Millisecond)
	v, err := store.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestWorkerGetMissRepliesNotin(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("missing"), Op: queue.OpGet, ID: 1})

	frame := wait()
	require.NotNil(t, frame)
	assert.Equal(t, wire.RepNotin, wire.Reply(frame[4])<<8|wire.Reply(frame[5]))
}

func TestWorkerCasMismatchRepliesNomatch(t *testing.T) {
	store := backend.NewMemory()
	require.NoError(t, store.Set([]byte("x"), []byte("actual")))
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("x"), Value: []byte("expected"), NewVal: []byte("new"), Op: queue.OpCas, ID: 1})

	frame := wait()
	require.NotNil(t, frame)
	assert.Equal(t, wire.RepNomatch, wire.Reply(frame[4])<<8|wire.Reply(frame[5]))
}

func TestWorkerIncrWritesFormattedBackendValue(t *testing.T) {
	store := backend.NewMemory()
	require.NoError(t, store.Set([]byte("n"), []byte("10\x00")))
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("n"), Delta: 40, Op: queue.OpIncr, ID: 1})

	frame := wait()
	require.NotNil(t, frame)

	v, err := store.Get([]byte("n"))
	require.NoError(t, err)
	assert.Equal(t, "                     50\x00", string(v))
}

func TestWorkerDrainsOnStop(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())

	q.Put(&queue.Entry{Key: []byte("a"), Value: []byte("1"), Op: queue.OpSet, ID: 1})
	q.Put(&queue.Entry{Key: []byte("b"), Value: []byte("2"), Op: queue.OpSet, ID: 2})

	go w.Start()
	w.Stop()

	v, err := store.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = store.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestWorkerPassiveModeCheckedPerReplyNotAtConstruction(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	flags := &stats.Flags{}
	w := New(store, q, &stats.Counters{}, flags, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("x"), Value: []byte("1"), Op: queue.OpSet, ID: 1, Sync: true})
	require.NotNil(t, wait(), "non-passive reply must go out")

	flags.TogglePassive()
	target, wait = collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("y"), Value: []byte("2"), Op: queue.OpSet, ID: 2, Sync: true})
	assert.Nil(t, wait(), "passive mode toggled on must suppress the reply even though the entry was already enqueued")

	v, err := store.Get([]byte("y"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v, "passive mode must not block the state mutation itself")

	flags.TogglePassive()
	target, wait = collectReply()
	q.Put(&queue.Entry{Reply: target, Key: []byte("y"), Op: queue.OpGet, ID: 3})
	assert.NotNil(t, wait(), "passive mode toggled back off must resume replies")
}

func TestWorkerUnknownOpDropsEntrySilently(t *testing.T) {
	store := backend.NewMemory()
	q := queue.New()
	w := New(store, q, &stats.Counters{}, &stats.Flags{}, log.Default())
	go w.Start()
	defer w.Stop()

	target, wait := collectReply()
	q.Put(&queue.Entry{Reply: target, Op: queue.Op(99), ID: 1})

	frame := wait()
	assert.Nil(t, frame)
}
