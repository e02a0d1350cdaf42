package indexbuilder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/graphstore/internal/types"
)

// sendRetryInterval bounds how long a producer waits on a full queue before
// it tries to drain the shard again.
const sendRetryInterval = time.Millisecond

type entry struct {
	key  types.Value
	hash uint64
	off  types.Offset
}

// Index is the sharded index the queues feed.
type Index interface {
	KeyType() types.PhysicalType
	NumShards() int
	ShardOf(h uint64) int
	AppendHashed(key types.Value, h uint64, off types.Offset) bool
}

// GlobalQueues holds one bounded queue per index shard.
type GlobalQueues struct {
	index  Index
	queues []chan []entry
	// drainers admits a single drainer per shard.
	drainers []sync.Mutex

	mu      sync.Mutex
	workers []*Consumer

	inserted atomic.Uint64
	errMu    sync.Mutex
	err      error
}

// NewGlobalQueues returns queues holding up to queueSize buffers per shard.
func NewGlobalQueues(index Index, queueSize int) *GlobalQueues {
	if queueSize <= 0 {
		queueSize = 1
	}
	q := &GlobalQueues{
		index:    index,
		queues:   make([]chan []entry, index.NumShards()),
		drainers: make([]sync.Mutex, index.NumShards()),
	}
	for i := range q.queues {
		q.queues[i] = make(chan []entry, queueSize)
	}
	return q
}

func (q *GlobalQueues) NumShards() int { return len(q.queues) }

// Inserted returns the number of keys written to the index so far.
func (q *GlobalQueues) Inserted() uint64 { return q.inserted.Load() }

// Send queues buf for shard. If the queue is full the caller drains the
// shard itself before waiting, so producers make progress without consumers.
func (q *GlobalQueues) Send(ctx context.Context, shard int, buf []entry) error {
	for {
		select {
		case q.queues[shard] <- buf:
			return nil
		default:
		}
		if q.drain(shard) > 0 {
			continue
		}
		select {
		case q.queues[shard] <- buf:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sendRetryInterval):
		}
	}
}

// drain moves every queued buffer of shard into the index. It returns the
// number of buffers drained, or 0 if another goroutine holds the shard.
func (q *GlobalQueues) drain(shard int) int {
	if !q.drainers[shard].TryLock() {
		return 0
	}
	defer q.drainers[shard].Unlock()
	return q.drainLocked(shard)
}

func (q *GlobalQueues) drainLocked(shard int) int {
	n := 0
	for {
		select {
		case buf := <-q.queues[shard]:
			q.appendAll(buf)
			n++
		default:
			return n
		}
	}
}

func (q *GlobalQueues) appendAll(buf []entry) {
	for _, e := range buf {
		if q.index.AppendHashed(e.key, e.hash, e.off) {
			q.inserted.Add(1)
			continue
		}
		q.setErr(fmt.Errorf("%w: %s", ErrDuplicateKey, e.key))
	}
}

func (q *GlobalQueues) setErr(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.err == nil {
		q.err = err
	}
}

// Err returns the first error met while draining.
func (q *GlobalQueues) Err() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// drainAll drains every shard, waiting for drainers still at work.
func (q *GlobalQueues) drainAll() {
	for shard := range q.queues {
		q.drainers[shard].Lock()
		q.drainLocked(shard)
		q.drainers[shard].Unlock()
	}
}

// AddWorker registers c and rebalances shard ranges over all workers.
func (q *GlobalQueues) AddWorker(c *Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers = append(q.workers, c)
	q.rebalanceLocked()
}

// WorkerQuit unregisters c and hands its shards to the remaining workers.
func (q *GlobalQueues) WorkerQuit(c *Consumer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.workers {
		if w == c {
			q.workers = append(q.workers[:i], q.workers[i+1:]...)
			break
		}
	}
	q.rebalanceLocked()
}

func (q *GlobalQueues) NumWorkers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

// rebalanceLocked splits the shards into one contiguous range per worker.
// The first numShards%numWorkers workers get one extra shard.
func (q *GlobalQueues) rebalanceLocked() {
	n := len(q.workers)
	if n == 0 {
		return
	}
	each, extra := len(q.queues)/n, len(q.queues)%n
	from := 0
	for i, w := range q.workers {
		size := each
		if i < extra {
			size++
		}
		w.assign(shardRange{from: from, to: from + size})
		from += size
	}
}
