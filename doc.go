// Package graphstore provides the storage core of an embedded graph database.
//
// Node properties are stored column by column in fixed-capacity node groups.
// Every chunk carries compression metadata (min, max, constant, encoding) that
// scans use to skip node groups a filter rules out. Each node table owns a
// sharded, disk-resident primary key hash index.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := graphstore.Open(ctx, "./data")
//	defer db.Close()
//
//	db.CreateNodeTable(ctx, "Person", []graphstore.Property{
//	    {Name: "name", Type: graphstore.String},
//	    {Name: "age", Type: graphstore.Int64},
//	}, "name")
//
// # Transactions
//
// One write transaction runs at a time. Readers never wait for it:
//
//	db.Update(ctx, func(tx *graphstore.Tx) error {
//	    _, err := tx.Insert("Person", map[string]graphstore.Value{
//	        "name": graphstore.NewString("alice"),
//	        "age":  graphstore.NewInt64(42),
//	    })
//	    return err
//	})
//
//	db.View(ctx, func(tx *graphstore.Tx) error {
//	    off, err := tx.LookupPK("Person", graphstore.NewString("alice"))
//	    ...
//	})
//
// Commit writes changed chunks in place when the new values fit the chunk's
// compression metadata and rewrites the chunk otherwise.
//
// # Bulk Load
//
// BulkLoad fills an empty node table from several row sources in parallel.
// Full node groups are written as they fill up while primary keys are routed
// through per-shard queues into the index:
//
//	res, _ := db.BulkLoad(ctx, "Person", []graphstore.RowSource{src1, src2})
//
// # Durability Model
//
// Commits are published in memory and recorded in the WAL. Checkpoint (and
// Close) flushes column metadata, indexes and statistics and writes a new
// manifest:
//
//	db.Checkpoint(ctx)  // durable after this
//
// Changes committed after the last checkpoint are lost on a crash; Open
// reports them from the WAL.
//
// # Archives
//
// Archive uploads the checkpointed files to a blobstore.BlobStore (local
// disk, memory, MinIO or S3), Restore downloads the latest archive.
package graphstore
