package common

import (
	"fmt"
	"runtime"
)

// MemoryStats is a snapshot of the Go heap.
type MemoryStats struct {
	Alloc      uint64
	TotalAlloc uint64
	Sys        uint64
	HeapInuse  uint64
	NumGC      uint32
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
	}
}

// Since returns what was allocated and collected between before and m.
func (m MemoryStats) Since(before MemoryStats) MemoryStats {
	d := MemoryStats{Alloc: m.Alloc, Sys: m.Sys, HeapInuse: m.HeapInuse}
	if m.TotalAlloc >= before.TotalAlloc {
		d.TotalAlloc = m.TotalAlloc - before.TotalAlloc
	}
	if m.NumGC >= before.NumGC {
		d.NumGC = m.NumGC - before.NumGC
	}
	return d
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("Alloc: %d KB, Total: %d KB, Sys: %d KB, GC: %d",
		m.Alloc/1024,
		m.TotalAlloc/1024,
		m.Sys/1024,
		m.NumGC)
}
