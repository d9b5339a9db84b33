// Package mempool recycles scratch slices used once per image: the integral
// image of the adaptive threshold pass and ONNX input tensors.
package mempool

import "sync"

// Shared pools.
var (
	Float32 Pool[float32]
	Int64   Pool[int64]
)

// Pool hands out slices bucketed by size class. The zero value is ready to
// use and safe for concurrent use. Slices are not zeroed.
type Pool[T any] struct {
	classes sync.Map // size class (int) -> *sync.Pool
}

// sizeClass rounds n up to the next multiple of 1024, minimum 1024.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func (p *Pool[T]) class(cls int) *sync.Pool {
	sp, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return sp.(*sync.Pool)
}

// Get returns a slice of length n. Its contents are undefined.
func (p *Pool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp := p.class(cls).Get().(*[]T)
	buf := *bp
	if cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

// Put returns buf for reuse. Nil and tiny slices are dropped.
func (p *Pool[T]) Put(buf []T) {
	if cap(buf) < 1024 {
		return
	}
	// Round down so a slice never lands in a class larger than its capacity.
	cls := cap(buf) / 1024 * 1024
	full := buf[:cap(buf)]
	p.class(cls).Put(&full)
}
