package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{-1, 1024},
		{0, 1024},
		{1, 1024},
		{1024, 1024},
		{1025, 2048},
		{2048, 2048},
		{10000, 10240},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sizeClass(tt.input), "size %d", tt.input)
	}
}

func TestPool_Get(t *testing.T) {
	var p Pool[float32]
	for _, n := range []int{0, 100, 1024, 5000} {
		buf := p.Get(n)
		assert.Len(t, buf, n)
		assert.GreaterOrEqual(t, cap(buf), sizeClass(n))
	}
	assert.Empty(t, p.Get(-5))
}

func TestPool_PutAndReuse(t *testing.T) {
	var p Pool[int64]
	p.Put(nil)
	p.Put(make([]int64, 10))

	buf := p.Get(3000)
	require.Len(t, buf, 3000)
	for i := range buf {
		buf[i] = int64(i)
	}
	p.Put(buf)

	again := p.Get(2500)
	assert.Len(t, again, 2500)
	assert.GreaterOrEqual(t, cap(again), 3072)
}

func TestPool_OddCapacityGoesToSmallerClass(t *testing.T) {
	var p Pool[float32]
	p.Put(make([]float32, 1500))
	// 1500 rounds down into the 1024 class, so a 2048 request never sees it.
	assert.GreaterOrEqual(t, cap(p.Get(2000)), 2048)
	assert.GreaterOrEqual(t, cap(p.Get(1000)), 1024)
}

func TestPool_Concurrent(t *testing.T) {
	const goroutines, iterations, size = 32, 200, 1500

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range iterations {
				buf := Float32.Get(size)
				assert.Len(t, buf, size)
				for k := range buf {
					buf[k] = float32(i)
				}
				Float32.Put(buf)
			}
		}()
	}
	wg.Wait()
}
