package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned for reservations larger than the whole
// memory budget.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited, except
// MaxBackgroundWorkers which defaults to 1.
type Config struct {
	// MemoryLimitBytes bounds page cache and bulk-load buffer memory.
	MemoryLimitBytes int64
	// MaxBackgroundWorkers bounds extra primary key index consumers.
	MaxBackgroundWorkers int64
	// IOLimitBytesPerSec throttles checkpoint and archive writes.
	IOLimitBytesPerSec int64
}

// Controller shares one memory budget, worker pool and IO rate between the
// page cache, bulk loads and checkpoints. A nil Controller grants everything.
type Controller struct {
	memLimit int64
	mem      *semaphore.Weighted
	memUsed  atomic.Int64
	workers  *semaphore.Weighted
	io       *rate.Limiter
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		memLimit: cfg.MemoryLimitBytes,
		workers:  semaphore.NewWeighted(max(cfg.MaxBackgroundWorkers, 1)),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.io = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// TryAcquireMemory reserves n bytes if the budget has room.
func (c *Controller) TryAcquireMemory(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.mem != nil && !c.mem.TryAcquire(n) {
		return false
	}
	c.memUsed.Add(n)
	return true
}

// WaitMemory blocks until n bytes are reserved or ctx is done.
func (c *Controller) WaitMemory(ctx context.Context, n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.mem != nil {
		if n > c.memLimit {
			return fmt.Errorf("%w: %d of %d bytes requested", ErrMemoryLimitExceeded, n, c.memLimit)
		}
		if err := c.mem.Acquire(ctx, n); err != nil {
			return err
		}
	}
	c.memUsed.Add(n)
	return nil
}

func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(n)
	}
	c.memUsed.Add(-n)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// TryAcquireBackground takes a worker slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	return c == nil || c.workers.TryAcquire(1)
}

func (c *Controller) ReleaseBackground() {
	if c != nil {
		c.workers.Release(1)
	}
}

// AcquireIO waits until n bytes may be written. Requests above the burst
// are split.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for ; n > burst; n -= burst {
		if err := c.io.WaitN(ctx, burst); err != nil {
			return err
		}
	}
	return c.io.WaitN(ctx, n)
}
