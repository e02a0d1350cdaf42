package graphstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    commitCounter   prometheus.Counter
//	    scanHistogram   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCommit(duration time.Duration, err error) {
//	    p.commitCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordCommit is called after each write transaction commit.
	// err is non-nil if the commit failed and the transaction was rolled back.
	RecordCommit(duration time.Duration, err error)

	// RecordRollback is called after each explicit or implicit rollback.
	RecordRollback()

	// RecordCheckpoint is called after each checkpoint.
	RecordCheckpoint(duration time.Duration, err error)

	// RecordBulkLoad is called after each bulk load.
	// rows is the number of rows loaded.
	RecordBulkLoad(rows uint64, duration time.Duration, err error)

	// RecordScan is called after each table scan.
	// rows is the number of rows produced.
	RecordScan(rows int, duration time.Duration)

	// RecordPruned is called with the number of node groups a scan skipped
	// through compression metadata.
	RecordPruned(nodeGroups int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCommit(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRollback()                             {}
func (NoopMetricsCollector) RecordCheckpoint(time.Duration, error)       {}
func (NoopMetricsCollector) RecordBulkLoad(uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordScan(int, time.Duration)               {}
func (NoopMetricsCollector) RecordPruned(int)                            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CommitCount      atomic.Int64
	CommitErrors     atomic.Int64
	CommitTotalNanos atomic.Int64
	RollbackCount    atomic.Int64
	CheckpointCount  atomic.Int64
	CheckpointErrors atomic.Int64
	BulkLoadCount    atomic.Int64
	BulkLoadRows     atomic.Int64
	BulkLoadErrors   atomic.Int64
	ScanCount        atomic.Int64
	ScanRows         atomic.Int64
	ScanTotalNanos   atomic.Int64
	PrunedNodeGroups atomic.Int64
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordRollback implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRollback() {
	b.RollbackCount.Add(1)
}

// RecordCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCheckpoint(duration time.Duration, err error) {
	b.CheckpointCount.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// RecordBulkLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBulkLoad(rows uint64, duration time.Duration, err error) {
	b.BulkLoadCount.Add(1)
	if err != nil {
		b.BulkLoadErrors.Add(1)
		return
	}
	b.BulkLoadRows.Add(int64(rows))
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(rows int, duration time.Duration) {
	b.ScanCount.Add(1)
	b.ScanRows.Add(int64(rows))
	b.ScanTotalNanos.Add(duration.Nanoseconds())
}

// RecordPruned implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPruned(nodeGroups int) {
	b.PrunedNodeGroups.Add(int64(nodeGroups))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitAvgNanos:   avg(b.CommitTotalNanos.Load(), b.CommitCount.Load()),
		RollbackCount:    b.RollbackCount.Load(),
		CheckpointCount:  b.CheckpointCount.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
		BulkLoadCount:    b.BulkLoadCount.Load(),
		BulkLoadRows:     b.BulkLoadRows.Load(),
		BulkLoadErrors:   b.BulkLoadErrors.Load(),
		ScanCount:        b.ScanCount.Load(),
		ScanRows:         b.ScanRows.Load(),
		ScanAvgNanos:     avg(b.ScanTotalNanos.Load(), b.ScanCount.Load()),
		PrunedNodeGroups: b.PrunedNodeGroups.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CommitCount      int64
	CommitErrors     int64
	CommitAvgNanos   int64
	RollbackCount    int64
	CheckpointCount  int64
	CheckpointErrors int64
	BulkLoadCount    int64
	BulkLoadRows     int64
	BulkLoadErrors   int64
	ScanCount        int64
	ScanRows         int64
	ScanAvgNanos     int64
	PrunedNodeGroups int64
}
