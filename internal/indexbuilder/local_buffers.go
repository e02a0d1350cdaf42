package indexbuilder

import (
	"context"
	"fmt"

	"github.com/hupe1980/graphstore/internal/hashindex"
	"github.com/hupe1980/graphstore/internal/types"
)

// LocalBuffers batches one producer's keys per shard. It is not safe for
// concurrent use; every producer owns its own.
type LocalBuffers struct {
	q       *GlobalQueues
	size    int
	buffers [][]entry
}

func newLocalBuffers(q *GlobalQueues, size int) *LocalBuffers {
	return &LocalBuffers{q: q, size: size, buffers: make([][]entry, q.NumShards())}
}

func checkNonNullConstraint(key types.Value, keyType types.PhysicalType) error {
	if key.IsNull() {
		return ErrNullKey
	}
	if key.Type() != keyType {
		return fmt.Errorf("%w: %s key for %s index", ErrKeyType, key.Type(), keyType)
	}
	return nil
}

// Insert buffers key for its shard and hands the buffer to the shard queue
// once it holds BufferSize keys. Invalid keys are rejected before any index
// state changes.
func (l *LocalBuffers) Insert(ctx context.Context, key types.Value, off types.Offset) error {
	if err := checkNonNullConstraint(key, l.q.index.KeyType()); err != nil {
		return err
	}
	h := hashindex.HashKey(key)
	shard := l.q.index.ShardOf(h)
	buf := l.buffers[shard]
	if buf == nil {
		buf = make([]entry, 0, l.size)
	}
	buf = append(buf, entry{key: key, hash: h, off: off})
	if len(buf) < l.size {
		l.buffers[shard] = buf
		return nil
	}
	l.buffers[shard] = nil
	return l.q.Send(ctx, shard, buf)
}

// Flush hands every non-empty buffer to its shard queue.
func (l *LocalBuffers) Flush(ctx context.Context) error {
	for shard, buf := range l.buffers {
		if len(buf) == 0 {
			continue
		}
		l.buffers[shard] = nil
		if err := l.q.Send(ctx, shard, buf); err != nil {
			return err
		}
	}
	return nil
}
