package indexbuilder

import (
	"context"
	"runtime"
	"time"
)

// spinRounds is the number of idle rounds a consumer yields before it parks.
const spinRounds = 64

type shardRange struct {
	from, to int
}

// Consumer drains the queues of the shards it currently owns.
type Consumer struct {
	q *GlobalQueues
	// ranges carries the latest assignment. Older pending ones are dropped.
	ranges  chan shardRange
	current shardRange
}

func newConsumer(q *GlobalQueues) *Consumer {
	return &Consumer{q: q, ranges: make(chan shardRange, 1)}
}

// assign is only called with the queues' mutex held.
func (c *Consumer) assign(r shardRange) {
	select {
	case <-c.ranges:
	default:
	}
	c.ranges <- r
}

func (c *Consumer) drainOwned() int {
	n := 0
	for shard := c.current.from; shard < c.current.to; shard++ {
		n += c.q.drain(shard)
	}
	return n
}

// Run drains the owned shards until done is closed or ctx is cancelled. It
// joins the queues on entry and quits them on return.
func (c *Consumer) Run(ctx context.Context, done <-chan struct{}) error {
	c.q.AddWorker(c)
	defer c.q.WorkerQuit(c)

	idle := 0
	for {
		select {
		case r := <-c.ranges:
			c.current = r
		default:
		}
		if c.drainOwned() > 0 {
			idle = 0
			continue
		}
		idle++
		if idle < spinRounds {
			select {
			case <-done:
				c.drainOwned()
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
				runtime.Gosched()
			}
			continue
		}
		select {
		case <-done:
			c.drainOwned()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case r := <-c.ranges:
			c.current = r
		case <-time.After(sendRetryInterval):
		}
	}
}
