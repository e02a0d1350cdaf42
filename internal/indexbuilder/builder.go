package indexbuilder

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/hupe1980/graphstore/internal/resource"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNullKey      = errors.New("indexbuilder: found NULL, which violates the non-null constraint of the primary key")
	ErrKeyType      = errors.New("indexbuilder: primary key type mismatch")
	ErrDuplicateKey = errors.New("indexbuilder: duplicate primary key")
	ErrFinalized    = errors.New("indexbuilder: already finalized")
)

// Options configures an IndexBuilder.
type Options struct {
	// NumWorkers is the number of consumer goroutines. Zero leaves all
	// draining to producers.
	NumWorkers int
	// QueueSize is the number of buffers a shard queue holds.
	QueueSize int
	// BufferSize is the number of keys per local buffer.
	BufferSize int
	// Resource grants consumer slots beyond the first.
	Resource *resource.Controller
	Logger   *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		NumWorkers: runtime.GOMAXPROCS(0),
		QueueSize:  16,
		BufferSize: 1024,
	}
}

// IndexBuilder runs the consumers of one bulk load.
type IndexBuilder struct {
	index  Index
	queues *GlobalQueues
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	done     chan struct{}
	group    *errgroup.Group
	slots    int
	finished bool
}

// New returns a builder feeding index.
func New(index Index, optFns ...func(o *Options)) *IndexBuilder {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &IndexBuilder{
		index:  index,
		queues: NewGlobalQueues(index, opts.QueueSize),
		opts:   opts,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Queues returns the shard queues.
func (b *IndexBuilder) Queues() *GlobalQueues { return b.queues }

// Start launches the consumers. Consumers beyond the first need a free
// background slot of the resource controller.
func (b *IndexBuilder) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.group != nil {
		return
	}
	b.group = &errgroup.Group{}
	for i := range b.opts.NumWorkers {
		if i > 0 {
			if !b.opts.Resource.TryAcquireBackground() {
				b.logger.Debug("no background slot for consumer", "started", i)
				break
			}
			b.slots++
		}
		b.startConsumer(ctx)
	}
}

func (b *IndexBuilder) startConsumer(ctx context.Context) {
	c := newConsumer(b.queues)
	b.group.Go(func() error { return c.Run(ctx, b.done) })
}

// AddWorker starts one more consumer while the load runs.
func (b *IndexBuilder) AddWorker(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return ErrFinalized
	}
	if b.group == nil {
		b.group = &errgroup.Group{}
	}
	b.startConsumer(ctx)
	return nil
}

// NewLocalBuffers returns buffers for one producer.
func (b *IndexBuilder) NewLocalBuffers() *LocalBuffers {
	return newLocalBuffers(b.queues, b.opts.BufferSize)
}

// FinishedProducing hands the producer's remaining keys to the queues.
func (b *IndexBuilder) FinishedProducing(ctx context.Context, lb *LocalBuffers) error {
	return lb.Flush(ctx)
}

// Finalize stops the consumers and drains every queue. All producers must
// have called FinishedProducing. The index stays in memory; persisting it is
// up to the owner.
func (b *IndexBuilder) Finalize(ctx context.Context) error {
	b.mu.Lock()
	if b.finished {
		b.mu.Unlock()
		return ErrFinalized
	}
	b.finished = true
	close(b.done)
	group := b.group
	b.mu.Unlock()

	var err error
	if group != nil {
		err = group.Wait()
	}
	for range b.slots {
		b.opts.Resource.ReleaseBackground()
	}
	b.queues.drainAll()
	if err != nil {
		return err
	}
	if err := b.queues.Err(); err != nil {
		return err
	}
	b.logger.Info("primary key index built", "keys", b.queues.Inserted(), "shards", b.queues.NumShards())
	return nil
}
