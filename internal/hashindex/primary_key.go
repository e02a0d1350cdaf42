package hashindex

import (
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/hupe1980/graphstore/internal/pagefile"
	"github.com/hupe1980/graphstore/internal/types"
)

// DefaultNumShards is the default number of shards per index.
const DefaultNumShards = 256

var (
	ErrKeyType = errors.New("hashindex: unsupported key type")
	ErrNullKey = errors.New("hashindex: NULL key")
	ErrCorrupt = errors.New("hashindex: corrupt index file")
	ErrNoFiles = errors.New("hashindex: index has no files")
)

// Options configures a PrimaryKeyIndexBuilder.
type Options struct {
	// NumShards must be a power of two.
	NumShards int
	Logger    *slog.Logger
}

func DefaultOptions() Options {
	return Options{NumShards: DefaultNumShards}
}

type shard struct {
	mu sync.RWMutex
	b  *HashIndexBuilder
}

// PrimaryKeyIndexBuilder is a sharded primary-key index. Each shard has its
// own lock; string keys of all shards share one overflow file.
type PrimaryKeyIndexBuilder struct {
	keyType   types.PhysicalType
	fsys      fs.FileSystem
	path      string
	shardBits uint
	shards    []*shard
	overflow  *OverflowFile
	logger    *slog.Logger

	flushMu sync.Mutex
	file    *pagefile.FileHandle
	ovfFile fs.File
}

func overflowPath(path string) string { return path + ".ovf" }

func newPrimaryKeyIndexBuilder(fsys fs.FileSystem, path string, keyType types.PhysicalType, opts Options) (*PrimaryKeyIndexBuilder, error) {
	if err := checkKeyType(keyType); err != nil {
		return nil, err
	}
	if opts.NumShards <= 0 {
		opts.NumShards = DefaultNumShards
	}
	if bits.OnesCount(uint(opts.NumShards)) != 1 {
		return nil, fmt.Errorf("hashindex: %d shards is not a power of two", opts.NumShards)
	}
	if fsys == nil {
		fsys = fs.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &PrimaryKeyIndexBuilder{
		keyType:   keyType,
		fsys:      fsys,
		path:      path,
		shardBits: uint(bits.TrailingZeros(uint(opts.NumShards))),
		shards:    make([]*shard, opts.NumShards),
		logger:    logger.With("index", path),
	}
	if keyType == types.String {
		p.overflow = NewOverflowFile()
	}
	for i := range p.shards {
		p.shards[i] = &shard{b: newHashIndexBuilder(keyType, newKeyCodec(keyType, p.overflow))}
	}
	return p, nil
}

func (p *PrimaryKeyIndexBuilder) KeyType() types.PhysicalType { return p.keyType }
func (p *PrimaryKeyIndexBuilder) NumShards() int              { return len(p.shards) }
func (p *PrimaryKeyIndexBuilder) Path() string                { return p.path }

// ShardOf returns the shard that owns hash h.
func (p *PrimaryKeyIndexBuilder) ShardOf(h uint64) int {
	if p.shardBits == 0 {
		return 0
	}
	return int(h >> (64 - p.shardBits))
}

func (p *PrimaryKeyIndexBuilder) checkKey(key types.Value) error {
	if key.IsNull() {
		return ErrNullKey
	}
	if key.Type() != p.keyType {
		return fmt.Errorf("%w: %s key in %s index", ErrKeyType, key.Type(), p.keyType)
	}
	return nil
}

// Lookup returns the offset of key.
func (p *PrimaryKeyIndexBuilder) Lookup(key types.Value) (types.Offset, bool) {
	if p.checkKey(key) != nil {
		return types.InvalidOffset, false
	}
	h := HashKey(key)
	s := p.shards[p.ShardOf(h)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.b.Lookup(key, h)
}

// Append inserts key. It returns false if the key already exists.
func (p *PrimaryKeyIndexBuilder) Append(key types.Value, off types.Offset) (bool, error) {
	if err := p.checkKey(key); err != nil {
		return false, err
	}
	return p.AppendHashed(key, HashKey(key), off), nil
}

// AppendHashed inserts a key whose hash was computed by HashKey. The key must
// be non-NULL and of the index's type.
func (p *PrimaryKeyIndexBuilder) AppendHashed(key types.Value, h uint64, off types.Offset) bool {
	s := p.shards[p.ShardOf(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Append(key, h, off)
}

// Delete removes key. It reports whether the key was present.
func (p *PrimaryKeyIndexBuilder) Delete(key types.Value) bool {
	if p.checkKey(key) != nil {
		return false
	}
	h := HashKey(key)
	s := p.shards[p.ShardOf(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Delete(key, h)
}

// BulkReserve spreads room for n more entries evenly over the shards.
func (p *PrimaryKeyIndexBuilder) BulkReserve(n uint64) {
	each := n/uint64(len(p.shards)) + 1
	for _, s := range p.shards {
		s.mu.Lock()
		s.b.BulkReserve(each)
		s.mu.Unlock()
	}
}

// NumEntries returns the number of keys in all shards.
func (p *PrimaryKeyIndexBuilder) NumEntries() uint64 {
	var n uint64
	for _, s := range p.shards {
		s.mu.RLock()
		n += s.b.NumEntries()
		s.mu.RUnlock()
	}
	return n
}

// Reset empties the index. Pages used by earlier flushes are not reclaimed.
func (p *PrimaryKeyIndexBuilder) Reset() {
	for _, s := range p.shards {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range p.shards {
			s.mu.Unlock()
		}
	}()
	if p.keyType == types.String {
		p.overflow = NewOverflowFile()
	}
	for _, s := range p.shards {
		s.b = newHashIndexBuilder(p.keyType, newKeyCodec(p.keyType, p.overflow))
	}
}
