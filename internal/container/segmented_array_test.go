package container

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentedArray(t *testing.T) {
	sa := NewSegmentedArray[int]()
	_, ok := sa.Get(0)
	assert.False(t, ok)

	for i := range 3 * segmentSize {
		assert.Equal(t, uint64(i), sa.PushBack(i))
	}
	assert.Equal(t, uint64(3*segmentSize), sa.Len())

	v, ok := sa.Get(segmentSize + 5)
	require.True(t, ok)
	assert.Equal(t, segmentSize+5, v)

	p := sa.Ptr(7)
	sa.Resize(10 * segmentSize)
	*p = 99
	v, _ = sa.Get(7)
	assert.Equal(t, 99, v, "pointers must survive growth")

	v, ok = sa.Get(9 * segmentSize)
	require.True(t, ok)
	assert.Equal(t, 0, v)

	assert.Panics(t, func() { sa.Set(10*segmentSize, 1) })
}

func TestSegmentedArrayConcurrentReads(t *testing.T) {
	sa := NewSegmentedArray[uint64]()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range uint64(20000) {
			sa.PushBack(i)
		}
	}()
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20000 {
				n := sa.Len()
				if n == 0 {
					continue
				}
				v, ok := sa.Get(n - 1)
				if !ok || v != n-1 {
					t.Errorf("read %d at %d", v, n-1)
					return
				}
			}
		}()
	}
	wg.Wait()
}
