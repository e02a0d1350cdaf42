// Package indexbuilder routes primary keys produced by concurrent bulk-load
// workers into the shards of a primary-key index.
//
// Producers hash keys into per-shard LocalBuffers and hand full buffers to
// the shard's bounded queue in GlobalQueues. Consumers own contiguous shard
// ranges and drain those queues into the index. Ranges are recomputed when a
// worker joins or quits. At most one goroutine drains a shard at a time, so
// a shard's builder only ever sees one writer.
//
// Usage:
//
//	b := indexbuilder.New(index, indexbuilder.DefaultOptions())
//	b.Start(ctx)
//	lb := b.NewLocalBuffers()
//	for key, off := range rows {
//		if err := lb.Insert(ctx, key, off); err != nil { ... }
//	}
//	b.FinishedProducing(ctx, lb)
//	err := b.Finalize(ctx)
package indexbuilder
