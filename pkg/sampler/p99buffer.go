package sampler

import (
	"slices"
	"sync"
)

// P99Buffer is a fixed-size ring of one endpoint's latencies observed by
// this replica since the last publication.
type P99Buffer struct {
	mu      sync.Mutex
	samples []int64
	next    int
	count   int
}

// NewP99Buffer returns a buffer holding up to size samples.
func NewP99Buffer(size int) *P99Buffer {
	return &P99Buffer{samples: make([]int64, max(size, 1))}
}

// Add stores a sample, overwriting the oldest one when full.
func (b *P99Buffer) Add(latencyMs int64) {
	b.mu.Lock()
	b.samples[b.next] = latencyMs
	b.next = (b.next + 1) % len(b.samples)
	b.count = min(b.count+1, len(b.samples))
	b.mu.Unlock()
}

// Len returns the number of stored samples.
func (b *P99Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// P99 returns the sample at rank floor(n*0.99), clamped to n-1. It reports
// false when the buffer is empty.
func (b *P99Buffer) P99() (int64, bool) {
	b.mu.Lock()
	if b.count == 0 {
		b.mu.Unlock()
		return 0, false
	}
	sorted := slices.Clone(b.samples[:b.count])
	b.mu.Unlock()

	slices.Sort(sorted)
	rank := min(int(float64(len(sorted))*0.99), len(sorted)-1)
	return sorted[rank], true
}

// Reset discards all samples.
func (b *P99Buffer) Reset() {
	b.mu.Lock()
	b.next, b.count = 0, 0
	b.mu.Unlock()
}
