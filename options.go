package graphstore

import (
	"log/slog"

	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/hashindex"
	"github.com/hupe1980/graphstore/internal/resource"
)

const (
	// DefaultNodeGroupSizeLog2 gives node groups of 2^18 rows.
	DefaultNodeGroupSizeLog2 = 18
	// DefaultPageCacheBytes is the default size of the page cache.
	DefaultPageCacheBytes = 64 << 20

	minNodeGroupSizeLog2 = 2
	maxNodeGroupSizeLog2 = 24
)

// FileSystem is the file system the database files live on.
type FileSystem = fs.FileSystem

// ResourceLimits bounds memory, background workers and checkpoint IO.
type ResourceLimits = resource.Config

type options struct {
	logger            *Logger
	metricsCollector  MetricsCollector
	nodeGroupSizeLog2 uint8
	numIndexShards    int
	compression       bool
	pageCacheBytes    int64
	walCompression    int
	walSync           bool
	fs                FileSystem
	limits            ResourceLimits
	readOnly          bool
}

// Option configures Open.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := graphstore.NewJSONLogger(slog.LevelInfo)
//	db, _ := graphstore.Open(ctx, "./data", graphstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &graphstore.BasicMetricsCollector{}
//	db, _ := graphstore.Open(ctx, "./data", graphstore.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Commits: %d, Avg latency: %dns\n", stats.CommitCount, stats.CommitAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithNodeGroupSizeLog2 sets the node group capacity to 2^log2 rows.
// It only applies when a new database is created; an existing database keeps
// the capacity it was created with.
func WithNodeGroupSizeLog2(log2 uint8) Option {
	return func(o *options) {
		o.nodeGroupSizeLog2 = log2
	}
}

// WithNumIndexShards sets the number of shards of primary key indexes
// created from now on. It must be a power of two.
func WithNumIndexShards(n int) Option {
	return func(o *options) {
		o.numIndexShards = n
	}
}

// WithCompression enables or disables integer bitpacking and constant
// encoding of column chunks. Enabled by default.
func WithCompression(enabled bool) Option {
	return func(o *options) {
		o.compression = enabled
	}
}

// WithPageCacheBytes sets the size of the page cache. Zero disables it.
func WithPageCacheBytes(n int64) Option {
	return func(o *options) {
		o.pageCacheBytes = n
	}
}

// WithWALCompression enables zstd compression of new WAL files at the given
// level. Zero disables it.
func WithWALCompression(level int) Option {
	return func(o *options) {
		o.walCompression = level
	}
}

// WithWALSync controls whether every WAL record is synced before a commit
// returns. Enabled by default.
func WithWALSync(enabled bool) Option {
	return func(o *options) {
		o.walSync = enabled
	}
}

// WithFileSystem sets the file system of the database files.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithResourceLimits bounds memory, background workers and IO throughput.
func WithResourceLimits(limits ResourceLimits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithReadOnly opens the database without a WAL. Write transactions, schema
// changes, bulk loads and checkpoints fail with ErrReadOnly.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:            NoopLogger(),
		metricsCollector:  NoopMetricsCollector{},
		nodeGroupSizeLog2: DefaultNodeGroupSizeLog2,
		numIndexShards:    hashindex.DefaultNumShards,
		compression:       true,
		pageCacheBytes:    DefaultPageCacheBytes,
		walSync:           true,
		fs:                fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	return o
}
